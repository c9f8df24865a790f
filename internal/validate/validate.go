// Package validate implements option validation: a pure function
// that reports every violation of a configuration at once, rather than
// failing fast on the first one, so a caller fixing a bad config sees
// every problem in one pass instead of one-at-a-time.
package validate

import (
	"errors"
	"fmt"

	"github.com/harcapture/engine/internal/match"
)

// Options mirrors the subset of session configuration that validation
// rules apply to. Session construction translates the caller-facing
// config into this shape before calling Validate.
type Options struct {
	EnableCompression      bool
	ForceFallbackAdapter   bool
	ResponseBodyScope      match.BodyScope
	MaxResponseBodySize    int64
	MaxWSFramesPerConn     int64
	MaxOutputFileSize      int64
	OutputFilePath         string
	CreatorName            string
	URLIncludePatterns     []string
	URLExcludePatterns     []string
}

// Validate checks opts against every rule below and returns all
// violations found, in rule order; a nil/empty return means opts is
// valid. Each violation is independent, so one bad field never masks
// another.
func Validate(opts Options) []error {
	var errs []error

	if opts.EnableCompression && opts.ForceFallbackAdapter {
		errs = append(errs, errors.New("enable_compression and force_fallback_adapter cannot both be true"))
	}

	if opts.ResponseBodyScope == match.ScopeNone && opts.MaxResponseBodySize > 0 {
		errs = append(errs, errors.New("response_body_scope=None conflicts with max_response_body_size > 0"))
	}

	if opts.MaxResponseBodySize < 0 {
		errs = append(errs, fmt.Errorf("max_response_body_size must be >= 0, got %d", opts.MaxResponseBodySize))
	}
	if opts.MaxWSFramesPerConn < 0 {
		errs = append(errs, fmt.Errorf("max_ws_frames_per_connection must be >= 0, got %d", opts.MaxWSFramesPerConn))
	}
	if opts.MaxOutputFileSize < 0 {
		errs = append(errs, fmt.Errorf("max_output_file_size must be >= 0, got %d", opts.MaxOutputFileSize))
	}

	if opts.MaxOutputFileSize > 0 && opts.OutputFilePath == "" {
		errs = append(errs, errors.New("max_output_file_size > 0 requires output_file_path"))
	}

	if opts.CreatorName == "" {
		errs = append(errs, errors.New("creator_name must be non-empty"))
	}

	for _, p := range opts.URLIncludePatterns {
		if p == "" {
			errs = append(errs, errors.New("url_include_patterns entries must be non-empty"))
			break
		}
	}
	for _, p := range opts.URLExcludePatterns {
		if p == "" {
			errs = append(errs, errors.New("url_exclude_patterns entries must be non-empty"))
			break
		}
	}

	return errs
}

// AggregateError joins all violations into a single error for callers
// that need one `error` return, preserving each message on its own line.
type AggregateError struct {
	Violations []error
}

func (e *AggregateError) Error() string {
	msg := "invalid configuration:"
	for _, v := range e.Violations {
		msg += "\n  - " + v.Error()
	}
	return msg
}

// AsError wraps Validate's result as a single error, or nil if there
// were no violations.
func AsError(violations []error) error {
	if len(violations) == 0 {
		return nil
	}
	return &AggregateError{Violations: violations}
}
