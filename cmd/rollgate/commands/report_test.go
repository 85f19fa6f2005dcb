package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rollgate/internal/config"
	"github.com/Sumatoshi-tech/rollgate/internal/report"
)

func stubReport() *report.Report {
	return &report.Report{
		GeneratedAt: time.Date(2025, 6, 15, 21, 0, 0, 0, time.UTC),
		Window:      "24h",
		MetricsFile: "daily_metrics.jsonl",
		StateFile:   "rollout_state.json",
	}
}

func TestReportCommand_DefaultTextFormat(t *testing.T) {
	t.Parallel()

	var seenWindow report.Window

	command := newReportCommandWithDeps(
		func(_ *config.Config, window report.Window, _ time.Time) (*report.Report, error) {
			seenWindow = window

			return stubReport(), nil
		},
	)

	var out bytes.Buffer
	command.SetOut(&out)
	command.SetArgs([]string{"--config", writeConfig(t, "")})

	err := command.Execute()
	require.NoError(t, err)
	require.Equal(t, report.Window{Hours: 24}, seenWindow)
	require.Contains(t, out.String(), "OPS REPORT")
	require.Contains(t, out.String(), "budget")
}

func TestReportCommand_WindowForwarded(t *testing.T) {
	t.Parallel()

	var seenWindow report.Window

	command := newReportCommandWithDeps(
		func(_ *config.Config, window report.Window, _ time.Time) (*report.Report, error) {
			seenWindow = window

			return stubReport(), nil
		},
	)

	command.SetOut(io.Discard)
	command.SetArgs([]string{"--config", writeConfig(t, ""), "--window", "7d"})

	err := command.Execute()
	require.NoError(t, err)
	require.Equal(t, report.Window{Hours: 168}, seenWindow)
}

func TestReportCommand_JSONFormat(t *testing.T) {
	t.Parallel()

	command := newReportCommandWithDeps(
		func(_ *config.Config, _ report.Window, _ time.Time) (*report.Report, error) {
			return stubReport(), nil
		},
	)

	var out bytes.Buffer
	command.SetOut(&out)
	command.SetArgs([]string{"--config", writeConfig(t, ""), "--format", "json"})

	err := command.Execute()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Equal(t, "24h", decoded["window"])
	require.Equal(t, "daily_metrics.jsonl", decoded["metrics_file"])
}

func TestReportCommand_HTMLFormat(t *testing.T) {
	t.Parallel()

	command := newReportCommandWithDeps(
		func(_ *config.Config, _ report.Window, _ time.Time) (*report.Report, error) {
			return stubReport(), nil
		},
	)

	var out bytes.Buffer
	command.SetOut(&out)
	command.SetArgs([]string{"--config", writeConfig(t, ""), "--format", "html"})

	err := command.Execute()
	require.NoError(t, err)
	require.Contains(t, out.String(), "<!DOCTYPE html>")
	require.Contains(t, out.String(), "Rollout quality trends")
}

func TestReportCommand_UnknownFormat(t *testing.T) {
	t.Parallel()

	var called bool

	command := newReportCommandWithDeps(
		func(_ *config.Config, _ report.Window, _ time.Time) (*report.Report, error) {
			called = true

			return stubReport(), nil
		},
	)

	command.SetOut(io.Discard)
	command.SetArgs([]string{"--config", writeConfig(t, ""), "--format", "pdf"})

	err := command.Execute()
	require.ErrorIs(t, err, ErrUnknownFormat)
	require.False(t, called)
}

func TestReportCommand_InvalidWindow(t *testing.T) {
	t.Parallel()

	command := newReportCommandWithDeps(
		func(_ *config.Config, _ report.Window, _ time.Time) (*report.Report, error) {
			return stubReport(), nil
		},
	)

	command.SetOut(io.Discard)
	command.SetArgs([]string{"--config", writeConfig(t, ""), "--window", "fortnight"})

	err := command.Execute()
	require.ErrorIs(t, err, report.ErrInvalidWindow)
}

func TestReportCommand_WritesToFile(t *testing.T) {
	t.Parallel()

	outPath := filepath.Join(t.TempDir(), "report.txt")

	command := newReportCommandWithDeps(
		func(_ *config.Config, _ report.Window, _ time.Time) (*report.Report, error) {
			return stubReport(), nil
		},
	)

	var out bytes.Buffer
	command.SetOut(&out)
	command.SetArgs([]string{"--config", writeConfig(t, ""), "--out", outPath})

	err := command.Execute()
	require.NoError(t, err)
	require.Empty(t, out.String())

	written, readErr := os.ReadFile(outPath)
	require.NoError(t, readErr)
	require.Contains(t, string(written), "OPS REPORT")
}

func TestReportCommand_NoColorFlag(t *testing.T) {
	prev := color.NoColor
	t.Cleanup(func() { color.NoColor = prev })

	command := newReportCommandWithDeps(
		func(_ *config.Config, _ report.Window, _ time.Time) (*report.Report, error) {
			return stubReport(), nil
		},
	)

	command.SetOut(io.Discard)
	command.SetArgs([]string{"--config", writeConfig(t, ""), "--no-color"})

	err := command.Execute()
	require.NoError(t, err)
	require.True(t, color.NoColor)
}

func TestReportCommand_BuilderErrorPropagates(t *testing.T) {
	t.Parallel()

	errBuild := errors.New("state file corrupt")

	command := newReportCommandWithDeps(
		func(_ *config.Config, _ report.Window, _ time.Time) (*report.Report, error) {
			return nil, errBuild
		},
	)

	command.SetOut(io.Discard)
	command.SetArgs([]string{"--config", writeConfig(t, "")})

	err := command.Execute()
	require.ErrorIs(t, err, errBuild)
}
