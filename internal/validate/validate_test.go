package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harcapture/engine/internal/match"
)

func baseValid() Options {
	return Options{
		ResponseBodyScope: match.ScopeAll,
		CreatorName:       "selenium-har-capture",
	}
}

func TestValidOptionsProduceNoErrors(t *testing.T) {
	require.Empty(t, Validate(baseValid()))
}

func TestAllViolationsReportedAtOnce(t *testing.T) {
	opts := baseValid()
	opts.EnableCompression = true
	opts.ForceFallbackAdapter = true
	opts.CreatorName = ""
	opts.MaxResponseBodySize = -1
	opts.MaxOutputFileSize = 10
	opts.OutputFilePath = ""

	errs := Validate(opts)
	require.Len(t, errs, 4)
}

func TestScopeNoneConflictsWithMaxBodySize(t *testing.T) {
	opts := baseValid()
	opts.ResponseBodyScope = match.ScopeNone
	opts.MaxResponseBodySize = 100

	errs := Validate(opts)
	require.Len(t, errs, 1)
}

func TestMaxOutputFileSizeRequiresPath(t *testing.T) {
	opts := baseValid()
	opts.MaxOutputFileSize = 1000

	errs := Validate(opts)
	require.Len(t, errs, 1)

	opts.OutputFilePath = "/tmp/out.har"
	require.Empty(t, Validate(opts))
}

func TestEmptyIncludePatternRejected(t *testing.T) {
	opts := baseValid()
	opts.URLIncludePatterns = []string{"https://*", ""}

	errs := Validate(opts)
	require.Len(t, errs, 1)
}

func TestAsErrorWrapsViolations(t *testing.T) {
	require.Nil(t, AsError(nil))

	opts := baseValid()
	opts.CreatorName = ""
	err := AsError(Validate(opts))
	require.Error(t, err)
	require.Contains(t, err.Error(), "creator_name")
}
