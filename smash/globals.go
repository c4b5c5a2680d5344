package internal

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for config lookup paths and the env prefix
	DefaultAppName        = "smash"
	DefaultAppCMDShortCut = "smash"
	DefaultConfigPath     = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultSketchDBPath   = filepath.Join(DefaultConfigPath, "sketches.db")

	// Default store settings
	DefaultStoreDSN = "file:" + DefaultSketchDBPath

	// Default matching settings
	DefaultKSizes                 = []int{10, 15}
	DefaultQueueCapacity          = 1024
	DefaultProgressInterval       = 10000
	DefaultFilterShards           = 64
	DefaultBloomFalsePositiveRate = 0.01
	DefaultDedupPolicy            = "first"
	DefaultIndexBackend           = "radix"
	DefaultLogLevel               = "info"
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// NewLogger builds a logger writing to w at the named level. Format "console"
// switches to the human readable writer; anything else emits JSON lines.
// Unknown levels fall back to info.
func NewLogger(w io.Writer, level, format string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
