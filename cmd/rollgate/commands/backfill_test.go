package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rollgate/internal/backfill"
	"github.com/Sumatoshi-tech/rollgate/internal/category"
	"github.com/Sumatoshi-tech/rollgate/internal/config"
	"github.com/Sumatoshi-tech/rollgate/pkg/observability"
)

func TestBackfillCommand_RequiresDateRange(t *testing.T) {
	t.Parallel()

	var called bool

	command := newBackfillCommandWithDeps(
		func(_ context.Context, _ *config.Config, _ backfill.Request, _ string, _ observability.Providers) (*backfill.Summary, error) {
			called = true

			return &backfill.Summary{}, nil
		},
		noopObservabilityInit,
	)

	command.SetOut(io.Discard)
	command.SetArgs([]string{})

	err := command.Execute()
	require.ErrorIs(t, err, ErrMissingDateRange)
	require.False(t, called)
}

func TestBackfillCommand_RequiresBothEnds(t *testing.T) {
	t.Parallel()

	command := newBackfillCommandWithDeps(
		func(_ context.Context, _ *config.Config, _ backfill.Request, _ string, _ observability.Providers) (*backfill.Summary, error) {
			return &backfill.Summary{}, nil
		},
		noopObservabilityInit,
	)

	command.SetOut(io.Discard)
	command.SetArgs([]string{"--from", "2025-06-01"})

	err := command.Execute()
	require.ErrorIs(t, err, ErrMissingDateRange)
}

func TestBackfillCommand_ForwardsRequest(t *testing.T) {
	t.Parallel()

	var (
		seenReq     backfill.Request
		seenArchive string
	)

	command := newBackfillCommandWithDeps(
		func(_ context.Context, _ *config.Config, req backfill.Request, archivePath string, _ observability.Providers) (*backfill.Summary, error) {
			seenReq = req
			seenArchive = archivePath

			return &backfill.Summary{}, nil
		},
		noopObservabilityInit,
	)

	command.SetOut(io.Discard)
	command.SetArgs([]string{
		"--config", writeConfig(t, ""),
		"--from", "2025-06-01",
		"--to", "2025-06-10",
		"--category", "tech-trends",
		"--archive", "archive.jsonl",
		"--restart",
	})

	err := command.Execute()
	require.NoError(t, err)
	require.Equal(t, "2025-06-01", string(seenReq.From))
	require.Equal(t, "2025-06-10", string(seenReq.To))
	require.Equal(t, "tech-trends", seenReq.Scope)
	require.True(t, seenReq.Restart)
	require.Equal(t, "archive.jsonl", seenArchive)
	require.Equal(t, time.UTC, seenReq.Now.Location())
	require.False(t, seenReq.Now.IsZero())
}

func TestBackfillCommand_DefaultScopeAndArchive(t *testing.T) {
	t.Parallel()

	var (
		seenReq     backfill.Request
		seenArchive string
	)

	command := newBackfillCommandWithDeps(
		func(_ context.Context, _ *config.Config, req backfill.Request, archivePath string, _ observability.Providers) (*backfill.Summary, error) {
			seenReq = req
			seenArchive = archivePath

			return &backfill.Summary{}, nil
		},
		noopObservabilityInit,
	)

	command.SetOut(io.Discard)
	command.SetArgs([]string{
		"--config", writeConfig(t, ""),
		"--from", "2025-06-01",
		"--to", "2025-06-10",
	})

	err := command.Execute()
	require.NoError(t, err)
	require.Equal(t, category.ScopeAll, seenReq.Scope)
	require.False(t, seenReq.Restart)
	require.Empty(t, seenArchive)
}

func TestBackfillCommand_InvalidFromDate(t *testing.T) {
	t.Parallel()

	command := newBackfillCommandWithDeps(
		func(_ context.Context, _ *config.Config, _ backfill.Request, _ string, _ observability.Providers) (*backfill.Summary, error) {
			return &backfill.Summary{}, nil
		},
		noopObservabilityInit,
	)

	command.SetOut(io.Discard)
	command.SetArgs([]string{"--from", "yesterday", "--to", "2025-06-10"})

	err := command.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse date")
}

func TestBackfillCommand_PrintsSummaryJSON(t *testing.T) {
	t.Parallel()

	command := newBackfillCommandWithDeps(
		func(_ context.Context, _ *config.Config, _ backfill.Request, _ string, _ observability.Providers) (*backfill.Summary, error) {
			return &backfill.Summary{
				Scope:    "all",
				From:     "2025-06-01",
				To:       "2025-06-10",
				Units:    20,
				Replayed: 18,
				Missing:  2,
			}, nil
		},
		noopObservabilityInit,
	)

	var out bytes.Buffer
	command.SetOut(&out)
	command.SetArgs([]string{
		"--config", writeConfig(t, ""),
		"--from", "2025-06-01",
		"--to", "2025-06-10",
	})

	err := command.Execute()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Equal(t, "all", decoded["scope"])
	require.EqualValues(t, 18, decoded["replayed"])
	require.EqualValues(t, 2, decoded["missing"])
}

func TestBackfillCommand_ExecutorErrorPropagates(t *testing.T) {
	t.Parallel()

	errReplay := errors.New("archive corrupt")

	command := newBackfillCommandWithDeps(
		func(_ context.Context, _ *config.Config, _ backfill.Request, _ string, _ observability.Providers) (*backfill.Summary, error) {
			return nil, errReplay
		},
		noopObservabilityInit,
	)

	command.SetOut(io.Discard)
	command.SetArgs([]string{
		"--config", writeConfig(t, ""),
		"--from", "2025-06-01",
		"--to", "2025-06-10",
	})

	err := command.Execute()
	require.ErrorIs(t, err, errReplay)
}
