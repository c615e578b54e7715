package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/vlv"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig validates the configuration and returns a list of validation errors.
// An empty slice indicates the configuration is valid.
func ValidateConfig(config *Config) []error {
	var errs []error

	errs = append(errs, validateLogConfig(&config.Logging)...)
	errs = append(errs, validateBackendConfig(&config.Backend)...)
	errs = append(errs, validateIndexes(config.Indexes)...)
	errs = append(errs, validateVLVIndexes(config.VLVIndexes)...)

	return errs
}

// validateLogConfig validates logging configuration.
func validateLogConfig(config *LogConfig) []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if config.Level != "" && !validLevels[strings.ToLower(config.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be debug, info, warn, or error",
		})
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if config.Format != "" && !validFormats[strings.ToLower(config.Format)] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be text or json",
		})
	}

	if config.Output != "" && config.Output != "stdout" && config.Output != "stderr" {
		dir := filepath.Dir(config.Output)
		if !filepath.IsAbs(config.Output) {
			errs = append(errs, ValidationError{
				Field:   "logging.output",
				Message: "must be stdout, stderr, or an absolute file path",
			})
		} else if _, err := os.Stat(dir); os.IsNotExist(err) {
			errs = append(errs, ValidationError{
				Field:   "logging.output",
				Message: fmt.Sprintf("directory %s does not exist", dir),
			})
		}
	}

	return errs
}

// validateBackendConfig validates the backend defaults.
func validateBackendConfig(config *BackendConfig) []error {
	var errs []error

	if config.BaseDN != "" {
		if _, err := entry.NormalizeDN(config.BaseDN); err != nil {
			errs = append(errs, ValidationError{Field: "backend.baseDN", Message: err.Error()})
		}
	}

	for i, path := range config.SchemaFiles {
		if strings.TrimSpace(path) == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("backend.schemaFiles[%d]", i), Message: "must not be empty"})
		}
	}

	limits := []struct {
		field string
		value int
	}{
		{"backend.indexEntryLimit", config.IndexEntryLimit},
		{"backend.cursorEntryLimit", config.CursorEntryLimit},
		{"backend.candidateThreshold", config.CandidateThreshold},
		{"backend.openConcurrency", config.OpenConcurrency},
		{"backend.entryCacheSize", config.EntryCacheSize},
	}
	for _, l := range limits {
		if l.value < 0 {
			errs = append(errs, ValidationError{Field: l.field, Message: "must be non-negative"})
		}
	}

	if config.SubstringLength < 1 {
		errs = append(errs, ValidationError{Field: "backend.substringLength", Message: "must be at least 1"})
	}

	return errs
}

// validateIndexes validates the attribute index list.
func validateIndexes(indexes []IndexConfig) []error {
	var errs []error
	seen := make(map[string]bool)

	for i, ic := range indexes {
		prefix := fmt.Sprintf("indexes[%d]", i)

		attr := strings.ToLower(strings.TrimSpace(ic.Attribute))
		if attr == "" {
			errs = append(errs, ValidationError{Field: prefix + ".attribute", Message: "is required"})
		} else if seen[attr] {
			errs = append(errs, ValidationError{Field: prefix + ".attribute", Message: fmt.Sprintf("%s is indexed twice", ic.Attribute)})
		}
		seen[attr] = true

		if len(ic.Types) == 0 {
			errs = append(errs, ValidationError{Field: prefix + ".types", Message: "at least one index type is required"})
		}
		for _, t := range ic.Types {
			if _, err := index.ParseIndexType(t); err != nil {
				errs = append(errs, ValidationError{Field: prefix + ".types", Message: err.Error()})
			}
		}

		if ic.EntryLimit < 0 || ic.CursorEntryLimit < 0 || ic.SubstringLength < 0 {
			errs = append(errs, ValidationError{Field: prefix, Message: "limits and lengths must be non-negative"})
		}
	}

	return errs
}

// validateVLVIndexes validates the VLV index list.
func validateVLVIndexes(indexes []VLVIndexConfig) []error {
	var errs []error
	seen := make(map[string]bool)

	for i, vc := range indexes {
		prefix := fmt.Sprintf("vlvIndexes[%d]", i)

		name := strings.ToLower(strings.TrimSpace(vc.Name))
		if name == "" {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: "is required"})
		} else if seen[name] {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: fmt.Sprintf("duplicate VLV index %s", vc.Name)})
		}
		seen[name] = true

		if _, err := entry.NormalizeDN(vc.BaseDN); err != nil {
			errs = append(errs, ValidationError{Field: prefix + ".baseDN", Message: err.Error()})
		}
		if _, err := entry.ParseScope(vc.Scope); err != nil {
			errs = append(errs, ValidationError{Field: prefix + ".scope", Message: err.Error()})
		}
		if _, err := filter.Parse(vc.Filter); vc.Filter != "" && err != nil {
			errs = append(errs, ValidationError{Field: prefix + ".filter", Message: err.Error()})
		}
		if _, err := vlv.ParseSortOrder(vc.SortOrder); err != nil {
			errs = append(errs, ValidationError{Field: prefix + ".sortOrder", Message: err.Error()})
		}
		if _, err := vlv.ParseCompression(vc.Compression); err != nil {
			errs = append(errs, ValidationError{Field: prefix + ".compression", Message: err.Error()})
		}
		if vc.MaxBlockSize < 0 {
			errs = append(errs, ValidationError{Field: prefix + ".maxBlockSize", Message: "must be non-negative"})
		}
	}

	return errs
}
