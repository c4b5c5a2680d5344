package common

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Common error types used across smash packages
var (
	ErrNoSketches            = errors.New("no reference sketches provided")
	ErrEmptySketch           = errors.New("reference sketch has no k-mers")
	ErrInconsistentKSize     = errors.New("reference sketches do not share the same ksize")
	ErrInconsistentNumHashes = errors.New("reference sketches do not share the same number of hashes")
	ErrKmerLength            = errors.New("k-mer length does not match sketch ksize")
	ErrInvalidKSize          = errors.New("invalid k-mer size")
	ErrUnknownKSize          = errors.New("k-mer size is not configured")
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrSourceNotExist        = errors.New("source does not exist")
)

// ValidationUtils provides common validation utilities used across packages
type ValidationUtils struct{}

// NewValidationUtils creates a new ValidationUtils instance
func NewValidationUtils() *ValidationUtils {
	return &ValidationUtils{}
}

// ValidateContextCancellation checks if context is cancelled and returns appropriate error
func (vu *ValidationUtils) ValidateContextCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// ValidateRequiredString validates that a string is not empty
func (vu *ValidationUtils) ValidateRequiredString(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.Wrapf(ErrInvalidConfig, "%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateFileExists validates that a regular file exists and is readable
func (vu *ValidationUtils) ValidateFileExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(ErrSourceNotExist, path)
		}
		return errors.Wrapf(err, "failed to access file %s", path)
	}
	if info.IsDir() {
		return errors.Errorf("path is a directory, not a file: %s", path)
	}
	return nil
}

// ValidateKSizes checks that every k-mer size is positive and unique.
func (vu *ValidationUtils) ValidateKSizes(kSizes []int) error {
	if len(kSizes) == 0 {
		return errors.Wrap(ErrInvalidKSize, "at least one k-mer size is required")
	}
	seen := make(map[int]struct{}, len(kSizes))
	for _, k := range kSizes {
		if k <= 0 {
			return errors.Wrapf(ErrInvalidKSize, "k-mer size must be positive, got %d", k)
		}
		if _, dup := seen[k]; dup {
			return errors.Wrapf(ErrInvalidKSize, "duplicate k-mer size %d", k)
		}
		seen[k] = struct{}{}
	}
	return nil
}
