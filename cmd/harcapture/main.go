// Command harcapture drives a single HAR capture session from the
// command line. Without a real browser transport wired in, "capture"
// runs the scripted fallback.Adapter so the full pipeline — matching,
// redaction, WebSocket accumulation, the body pipeline, and the
// streaming writer — can be exercised end to end from a terminal.
//
// Grounded on cmd/gasoline-cmd's cobra root/sub-command split and
// cmd/dev-console's signal-driven shutdown, generalized from a
// long-lived dev server to a one-shot capture-then-stop run.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harcapture/engine/internal/adapter"
	harcfg "github.com/harcapture/engine/internal/config"
	"github.com/harcapture/engine/internal/fallback"
	"github.com/harcapture/engine/internal/har"
	"github.com/harcapture/engine/internal/logx"
	"github.com/harcapture/engine/internal/session"
)

var (
	flagOutput      string
	flagCreator     string
	flagScope       string
	flagCompress    bool
	flagLogLevel    string
	flagLogFormat   string
	flagProjectDir  string
	flagDemoScript  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "harcapture",
	Short: "HAR capture engine CLI",
	Long:  "harcapture drives a browser capture session and writes a HAR 1.2 document.",
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run a capture session until interrupted",
	RunE:  runCapture,
}

func init() {
	captureCmd.Flags().StringVar(&flagOutput, "output", "", "output .har file path (in-memory only if empty)")
	captureCmd.Flags().StringVar(&flagCreator, "creator-name", "", "override creator name")
	captureCmd.Flags().StringVar(&flagScope, "response-body-scope", "", "none|pages_and_api|all")
	captureCmd.Flags().BoolVar(&flagCompress, "compress", false, "gzip the output file on stop")
	captureCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "debug|info|warn|error")
	captureCmd.Flags().StringVar(&flagLogFormat, "log-format", "console", "console|json")
	captureCmd.Flags().StringVar(&flagProjectDir, "project-dir", ".", "directory to look for .harcapture.yaml")
	captureCmd.Flags().BoolVar(&flagDemoScript, "demo", false, "replay a small scripted capture instead of waiting for a real transport")

	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	overrides := &harcfg.Overrides{}
	if flagCreator != "" {
		overrides.CreatorName = &flagCreator
	}
	if flagScope != "" {
		overrides.ResponseBodyScope = &flagScope
	}
	if flagOutput != "" {
		overrides.OutputFilePath = &flagOutput
	}
	if flagCompress {
		v := true
		overrides.EnableCompression = &v
	}

	cfg, err := harcfg.Load(flagProjectDir, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logx.New(flagLogLevel, flagLogFormat)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	logger = logger.WithComponent(logx.ComponentSession)

	runID := uuid.NewString()
	logger.Info("starting capture session", zap.String("run_id", runID))

	sessCfg := session.Config{
		CreatorName:              cfg.CreatorName,
		CreatorVersion:           cfg.CreatorVersion,
		ForceFallbackAdapter:     cfg.ForceFallbackAdapter,
		MaxResponseBodySize:      cfg.MaxResponseBodySize,
		URLIncludePatterns:       cfg.URLIncludePatterns,
		URLExcludePatterns:       cfg.URLExcludePatterns,
		OutputFilePath:           cfg.OutputFilePath,
		BrowserName:              cfg.BrowserName,
		BrowserVersion:           cfg.BrowserVersion,
		ResponseBodyScope:        cfg.ResponseBodyScope,
		ResponseBodyMimeFilter:   cfg.ResponseBodyMimeFilter,
		EnableCompression:        cfg.EnableCompression,
		SensitiveHeaders:         cfg.SensitiveHeaders,
		SensitiveCookies:         cfg.SensitiveCookies,
		SensitiveQueryParams:     cfg.SensitiveQueryParams,
		SensitiveBodyPatterns:    cfg.SensitiveBodyPatterns,
		MaxWSFramesPerConnection: cfg.MaxWSFramesPerConnection,
		MaxOutputFileSize:        cfg.MaxOutputFileSize,
		Logger:                   logger,
		OnEntryWritten: func(e session.EntryWrittenEvent) {
			logger.Info("entry captured",
				zap.Int64("count", e.EntryCount),
				zap.String("url", e.EntryURL),
			)
		},
	}

	adp := buildAdapter(runID)
	sess := session.New(sessCfg, adp)

	page := &har.Page{
		ID:              runID,
		Title:           "harcapture session " + runID,
		StartedDateTime: time.Now().UTC().Format(time.RFC3339Nano),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sess.Start(ctx, page); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	if flagDemoScript {
		// The demo script already runs synchronously inside Start via the
		// fallback adapter's EnableNetwork; nothing further to wait for.
	} else {
		<-ctx.Done()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()

	outPath, err := sess.Stop(stopCtx)
	if err != nil {
		return fmt.Errorf("stop session: %w", err)
	}

	if outPath != "" {
		logger.Info("capture written", zap.String("path", outPath))
		return nil
	}

	doc := sess.GetHAR()
	fmt.Println(mustJSON(doc))
	return nil
}

// buildAdapter returns the scripted fallback adapter when --demo is set,
// exercising the full pipeline without a real browser transport; a real
// CDP or cross-browser transport is out of scope for this engine, which
// starts downstream of whatever adapter.Adapter implementation the host
// application supplies.
func buildAdapter(runID string) adapter.Adapter {
	if !flagDemoScript {
		return fallback.New(nil, nil)
	}

	steps := []fallback.Step{
		fallback.StepRequestWillBeSent(adapterReq(runID, "1", "https://example.com/")),
		fallback.StepResponseReceived(adapter.ResponseReceived{ID: "1", Status: 200, MimeType: "text/html", Timestamp: 0.05}),
		fallback.StepDOMContentEventFired(adapter.DOMContentEventFired{TimestampMs: 120}),
		fallback.StepLoadEventFired(adapter.LoadEventFired{TimestampMs: 250}),
	}
	bodies := map[adapter.RequestID]fallback.Body{
		"1": {Text: "<html><body>hello from harcapture</body></html>"},
	}
	return fallback.New(steps, bodies)
}

func adapterReq(runID, id, url string) adapter.RequestWillBeSent {
	return adapter.RequestWillBeSent{
		ID:       adapter.RequestID(id),
		Method:   "GET",
		URL:      url,
		Timestamp: 0,
		WallTime: float64(time.Now().Unix()),
	}
}

func mustJSON(doc har.Har) string {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Sprintf("error marshaling HAR: %v", err)
	}
	return string(b)
}
