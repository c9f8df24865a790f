package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harcapture/engine/internal/adapter"
	"github.com/harcapture/engine/internal/har"
)

func TestBuildAdapterDemoModeScriptsARequest(t *testing.T) {
	origDemo := flagDemoScript
	flagDemoScript = true
	defer func() { flagDemoScript = origDemo }()

	adp := buildAdapter("run-1")
	require.NotNil(t, adp)

	requests := 0
	adp.Subscribe(adapter.EventHandlers{OnRequestWillBeSent: func(adapter.RequestWillBeSent) { requests++ }})
	require.NoError(t, adp.EnableNetwork(context.Background()))
	require.Equal(t, 1, requests)
}

func TestBuildAdapterNonDemoModeIsBlank(t *testing.T) {
	origDemo := flagDemoScript
	flagDemoScript = false
	defer func() { flagDemoScript = origDemo }()

	adp := buildAdapter("run-1")
	require.NotNil(t, adp)

	requests := 0
	adp.Subscribe(adapter.EventHandlers{OnRequestWillBeSent: func(adapter.RequestWillBeSent) { requests++ }})
	require.NoError(t, adp.EnableNetwork(context.Background()))
	require.Equal(t, 0, requests)
}

func TestMustJSONProducesValidHARShape(t *testing.T) {
	doc := har.Har{Log: har.Log{Version: har.HARVersion}}
	out := mustJSON(doc)
	require.True(t, strings.Contains(out, `"version"`))
}

func TestRootCommandHasCaptureSubcommand(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Name() == "capture" {
			found = true
		}
	}
	require.True(t, found)
}
