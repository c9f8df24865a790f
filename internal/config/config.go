// Package config loads session.Config through a priority cascade:
// defaults < global file (~/.harcapture/config.yaml) < project file
// (.harcapture.yaml in the working directory) < environment variables
// < explicit overrides (e.g. CLI flags).
//
// Grounded on cmd/gasoline-cmd/config/loader.go's cascade shape
// (Defaults/Load and a pointer-based overrides struct so "not set" is
// distinguishable from the zero value), generalized from its single flat
// JSON file to YAML via
// gopkg.in/yaml.v3, and from its five scalar fields to the full
// session.Config surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harcapture/engine/internal/match"
	"github.com/harcapture/engine/internal/session"
)

// File is the on-disk shape of a config file, using pointers so a field
// absent from the YAML is distinguishable from an explicit zero value.
type File struct {
	CreatorName          *string  `yaml:"creator_name"`
	CreatorVersion       *string  `yaml:"creator_version"`
	ForceFallbackAdapter *bool    `yaml:"force_fallback_adapter"`
	MaxResponseBodySize  *int64   `yaml:"max_response_body_size"`
	URLIncludePatterns   []string `yaml:"url_include_patterns"`
	URLExcludePatterns   []string `yaml:"url_exclude_patterns"`
	OutputFilePath       *string  `yaml:"output_file_path"`
	BrowserName          *string  `yaml:"browser_name"`
	BrowserVersion       *string  `yaml:"browser_version"`
	ResponseBodyScope    *string  `yaml:"response_body_scope"`
	ResponseBodyMimeFilter []string `yaml:"response_body_mime_filter"`
	EnableCompression    *bool    `yaml:"enable_compression"`
	SensitiveHeaders     []string `yaml:"sensitive_headers"`
	SensitiveCookies     []string `yaml:"sensitive_cookies"`
	SensitiveQueryParams []string `yaml:"sensitive_query_params"`
	SensitiveBodyPatterns []string `yaml:"sensitive_body_patterns"`
	MaxWSFramesPerConnection *int64 `yaml:"max_ws_frames_per_connection"`
	MaxOutputFileSize    *int64   `yaml:"max_output_file_size"`
}

// Overrides holds values explicitly set by the caller (typically CLI
// flags). A nil pointer or nil slice means "not set": lower-priority
// values are kept, exactly as in loader.go's FlagOverrides.
type Overrides struct {
	CreatorName          *string
	ForceFallbackAdapter *bool
	OutputFilePath       *string
	ResponseBodyScope    *string
	EnableCompression    *bool
	MaxOutputFileSize    *int64
	URLIncludePatterns   []string
	URLExcludePatterns   []string
}

// Defaults returns the base session.Config before any file, env, or
// flag layer is applied.
func Defaults() session.Config {
	return session.Config{
		CreatorName:       "selenium-har-capture",
		CreatorVersion:    "0.1.0",
		ResponseBodyScope: match.ScopePagesAndAPI,
	}
}

// Load builds the final session.Config by applying, in increasing
// priority: defaults < global config (~/.harcapture/config.yaml) <
// project config (.harcapture.yaml in projectDir) < environment
// variables < overrides.
func Load(projectDir string, overrides *Overrides) (session.Config, error) {
	cfg := Defaults()

	if home, err := os.UserHomeDir(); err == nil {
		if err := loadYAMLFile(&cfg, filepath.Join(home, ".harcapture", "config.yaml")); err != nil {
			return cfg, fmt.Errorf("global config: %w", err)
		}
	}

	if err := loadYAMLFile(&cfg, filepath.Join(projectDir, ".harcapture.yaml")); err != nil {
		return cfg, fmt.Errorf("project config: %w", err)
	}

	loadEnvVars(&cfg)

	if overrides != nil {
		applyOverrides(&cfg, overrides)
	}

	return cfg, nil
}

func loadYAMLFile(cfg *session.Config, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a fixed well-known config location
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	mergeFile(cfg, f)
	return nil
}

func mergeFile(cfg *session.Config, f File) {
	if f.CreatorName != nil {
		cfg.CreatorName = *f.CreatorName
	}
	if f.CreatorVersion != nil {
		cfg.CreatorVersion = *f.CreatorVersion
	}
	if f.ForceFallbackAdapter != nil {
		cfg.ForceFallbackAdapter = *f.ForceFallbackAdapter
	}
	if f.MaxResponseBodySize != nil {
		cfg.MaxResponseBodySize = *f.MaxResponseBodySize
	}
	if f.URLIncludePatterns != nil {
		cfg.URLIncludePatterns = f.URLIncludePatterns
	}
	if f.URLExcludePatterns != nil {
		cfg.URLExcludePatterns = f.URLExcludePatterns
	}
	if f.OutputFilePath != nil {
		cfg.OutputFilePath = *f.OutputFilePath
	}
	if f.BrowserName != nil {
		cfg.BrowserName = *f.BrowserName
	}
	if f.BrowserVersion != nil {
		cfg.BrowserVersion = *f.BrowserVersion
	}
	if f.ResponseBodyScope != nil {
		if scope, ok := parseScope(*f.ResponseBodyScope); ok {
			cfg.ResponseBodyScope = scope
		}
	}
	if f.ResponseBodyMimeFilter != nil {
		cfg.ResponseBodyMimeFilter = f.ResponseBodyMimeFilter
	}
	if f.EnableCompression != nil {
		cfg.EnableCompression = *f.EnableCompression
	}
	if f.SensitiveHeaders != nil {
		cfg.SensitiveHeaders = f.SensitiveHeaders
	}
	if f.SensitiveCookies != nil {
		cfg.SensitiveCookies = f.SensitiveCookies
	}
	if f.SensitiveQueryParams != nil {
		cfg.SensitiveQueryParams = f.SensitiveQueryParams
	}
	if f.SensitiveBodyPatterns != nil {
		cfg.SensitiveBodyPatterns = f.SensitiveBodyPatterns
	}
	if f.MaxWSFramesPerConnection != nil {
		cfg.MaxWSFramesPerConnection = *f.MaxWSFramesPerConnection
	}
	if f.MaxOutputFileSize != nil {
		cfg.MaxOutputFileSize = *f.MaxOutputFileSize
	}
}

// loadEnvVars applies HARCAPTURE_* environment variable overrides,
// generalizing loader.go's GASOLINE_* convention to this project's
// prefix and to the config surface that makes sense to set per-run.
func loadEnvVars(cfg *session.Config) {
	if v := os.Getenv("HARCAPTURE_CREATOR_NAME"); v != "" {
		cfg.CreatorName = v
	}
	if v := os.Getenv("HARCAPTURE_OUTPUT_FILE_PATH"); v != "" {
		cfg.OutputFilePath = v
	}
	if v := os.Getenv("HARCAPTURE_RESPONSE_BODY_SCOPE"); v != "" {
		if scope, ok := parseScope(v); ok {
			cfg.ResponseBodyScope = scope
		}
	}
	if v := os.Getenv("HARCAPTURE_MAX_OUTPUT_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxOutputFileSize = n
		}
	}
	if v := os.Getenv("HARCAPTURE_ENABLE_COMPRESSION"); v != "" {
		cfg.EnableCompression = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("HARCAPTURE_FORCE_FALLBACK_ADAPTER"); v != "" {
		cfg.ForceFallbackAdapter = v == "1" || strings.EqualFold(v, "true")
	}
}

func applyOverrides(cfg *session.Config, o *Overrides) {
	if o.CreatorName != nil {
		cfg.CreatorName = *o.CreatorName
	}
	if o.ForceFallbackAdapter != nil {
		cfg.ForceFallbackAdapter = *o.ForceFallbackAdapter
	}
	if o.OutputFilePath != nil {
		cfg.OutputFilePath = *o.OutputFilePath
	}
	if o.ResponseBodyScope != nil {
		if scope, ok := parseScope(*o.ResponseBodyScope); ok {
			cfg.ResponseBodyScope = scope
		}
	}
	if o.EnableCompression != nil {
		cfg.EnableCompression = *o.EnableCompression
	}
	if o.MaxOutputFileSize != nil {
		cfg.MaxOutputFileSize = *o.MaxOutputFileSize
	}
	if o.URLIncludePatterns != nil {
		cfg.URLIncludePatterns = o.URLIncludePatterns
	}
	if o.URLExcludePatterns != nil {
		cfg.URLExcludePatterns = o.URLExcludePatterns
	}
}

func parseScope(s string) (match.BodyScope, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return match.ScopeNone, true
	case "pages_and_api", "pages-and-api", "pagesandapi":
		return match.ScopePagesAndAPI, true
	case "all":
		return match.ScopeAll, true
	default:
		return 0, false
	}
}
