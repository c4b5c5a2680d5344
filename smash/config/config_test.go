package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	internal "github.com/ZanzyTHEbar/streammash/smash"
	"github.com/ZanzyTHEbar/streammash/smash/common"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	tempDir, err := os.MkdirTemp("", "smash-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir

	err = os.Chdir(tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) writeConfig(content string) string {
	configFile := filepath.Join(suite.tempDir, "smash.yaml")
	err := os.WriteFile(configFile, []byte(content), 0o644)
	require.NoError(suite.T(), err)
	return configFile
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), []int{10, 15}, cfg.Match.KSizes)
	assert.Equal(suite.T(), runtime.NumCPU(), cfg.Match.NumWorkers)
	assert.Equal(suite.T(), 0, cfg.Match.MatchThreshold)
	assert.Equal(suite.T(), 0, cfg.Match.MaxSketches)
	assert.Equal(suite.T(), internal.DefaultQueueCapacity, cfg.Match.QueueCapacity)
	assert.Equal(suite.T(), "first", cfg.Match.DedupPolicy)
	assert.Equal(suite.T(), "radix", cfg.Match.IndexBackend)
	assert.Equal(suite.T(), internal.DefaultFilterShards, cfg.Match.FilterShards)
	assert.InDelta(suite.T(), internal.DefaultBloomFalsePositiveRate, cfg.Match.BloomFalsePositiveRate, 1e-12)
	assert.Equal(suite.T(), 10000, cfg.Match.ProgressInterval)
	assert.Equal(suite.T(), internal.DefaultStoreDSN, cfg.Store.DSN)
	assert.Equal(suite.T(), "info", cfg.Log.Level)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configFile := suite.writeConfig(`
match:
  kSizes: [5, 11, 21]
  numWorkers: 3
  matchThreshold: 2
  maxSketches: 50
  queueCapacity: 16
  dedupPolicy: every
  indexBackend: iradix
  filterShards: 8
  bloomFalsePositiveRate: 0
  progressInterval: 500
store:
  dsn: "file:test.db"
log:
  level: debug
  format: console
`)

	cfg, err := LoadConfig(configFile)

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), []int{5, 11, 21}, cfg.Match.KSizes)
	assert.Equal(suite.T(), 3, cfg.Match.NumWorkers)
	assert.Equal(suite.T(), 2, cfg.Match.MatchThreshold)
	assert.Equal(suite.T(), 50, cfg.Match.MaxSketches)
	assert.Equal(suite.T(), 16, cfg.Match.QueueCapacity)
	assert.Equal(suite.T(), "every", cfg.Match.DedupPolicy)
	assert.Equal(suite.T(), "iradix", cfg.Match.IndexBackend)
	assert.Equal(suite.T(), 8, cfg.Match.FilterShards)
	assert.Equal(suite.T(), 0.0, cfg.Match.BloomFalsePositiveRate)
	assert.Equal(suite.T(), 500, cfg.Match.ProgressInterval)
	assert.Equal(suite.T(), "file:test.db", cfg.Store.DSN)
	assert.Equal(suite.T(), "debug", cfg.Log.Level)
	assert.Equal(suite.T(), "console", cfg.Log.Format)
}

func (suite *ConfigTestSuite) TestLoadConfigEnvOverride() {
	suite.T().Setenv("SMASH_MATCH_NUMWORKERS", "7")
	suite.T().Setenv("SMASH_MATCH_DEDUPPOLICY", "every")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), 7, cfg.Match.NumWorkers)
	assert.Equal(suite.T(), "every", cfg.Match.DedupPolicy)
}

func (suite *ConfigTestSuite) TestLoadConfigMissingExplicitFile() {
	_, err := LoadConfig(filepath.Join(suite.tempDir, "does-not-exist.yaml"))
	assert.Error(suite.T(), err)
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsInvalidValues() {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{"negative k-size", "match:\n  kSizes: [10, -3]\n", common.ErrInvalidKSize},
		{"duplicate k-size", "match:\n  kSizes: [10, 10]\n", common.ErrInvalidKSize},
		{"zero workers", "match:\n  numWorkers: 0\n", common.ErrInvalidConfig},
		{"negative threshold", "match:\n  matchThreshold: -1\n", common.ErrInvalidConfig},
		{"unknown policy", "match:\n  dedupPolicy: sometimes\n", common.ErrInvalidConfig},
		{"unknown backend", "match:\n  indexBackend: btree\n", common.ErrInvalidConfig},
		{"bloom rate too high", "match:\n  bloomFalsePositiveRate: 1.5\n", common.ErrInvalidConfig},
		{"empty queue", "match:\n  queueCapacity: 0\n", common.ErrInvalidConfig},
		{"empty dsn", "store:\n  dsn: \"\"\n", common.ErrInvalidConfig},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := LoadConfig(suite.writeConfig(tt.content))
			require.Error(suite.T(), err)
			assert.True(suite.T(), errors.Is(err, tt.target), "got %v", err)
		})
	}
}
