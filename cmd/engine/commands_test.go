package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis118/paper-n-print-sub004/pkg/reminder"
	"github.com/gnosis118/paper-n-print-sub004/pkg/trial"
	"github.com/gnosis118/paper-n-print-sub004/svc/engine"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		reminderAt = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "testing")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("QUOTA_DRIVER", "memory")
	t.Setenv("SENDER_EMAIL", "billing@example.com")
	t.Setenv("SUPPORT_EMAIL", "support@example.com")
	t.Setenv("EMAIL_DEV_DIR", t.TempDir())
}

func TestVersionCmd(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := Version, BuildTime, GitCommit
	defer func() {
		Version, BuildTime, GitCommit = oldVersion, oldBuildTime, oldGitCommit
	}()

	Version = "1.2.3"
	BuildTime = "2026-05-01"
	GitCommit = "abcdef"
	output, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "engine 1.2.3")
	assert.Contains(t, output, "Built: 2026-05-01")
	assert.Contains(t, output, "Commit: abcdef")

	BuildTime = "unknown"
	GitCommit = "unknown"
	output, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "engine 1.2.3")
	assert.NotContains(t, output, "Built:")
	assert.NotContains(t, output, "Commit:")
}

func TestBatchCommands(t *testing.T) {
	memoryEnv(t)

	t.Run("reminders run prints a summary", func(t *testing.T) {
		output, err := execute(t, "reminders", "run", "--env-file", "testdata/missing.env", "--at", "2026-05-10T09:00:00Z")
		require.NoError(t, err)

		var summary struct {
			WindowStart string `json:"window_start"`
			WindowEnd   string `json:"window_end"`
			Candidates  int    `json:"candidates"`
			Dispatched  int    `json:"dispatched"`
		}
		require.NoError(t, json.Unmarshal([]byte(output), &summary))
		assert.Equal(t, "2026-05-10T09:00:00Z", summary.WindowStart)
		assert.Equal(t, "2026-05-13T09:00:00Z", summary.WindowEnd)
		assert.Zero(t, summary.Candidates)
	})

	t.Run("reminders run rejects a bad time", func(t *testing.T) {
		_, err := execute(t, "reminders", "run", "--at", "tomorrow")
		assert.ErrorContains(t, err, "invalid --at")
	})

	t.Run("trials sweep prints a summary", func(t *testing.T) {
		output, err := execute(t, "trials", "sweep", "--env-file", "testdata/missing.env")
		require.NoError(t, err)
		assert.JSONEq(t, `{"scanned":0,"expired":0,"failed":0}`, output)
	})

	t.Run("migrate needs postgres", func(t *testing.T) {
		_, err := execute(t, "migrate", "--env-file", "testdata/missing.env")
		assert.ErrorIs(t, err, engine.ErrNoPostgres)
	})
}

func TestRunBatch(t *testing.T) {
	t.Run("failed items still exit cleanly", func(t *testing.T) {
		var out bytes.Buffer
		err := runBatch(context.Background(), &out, func(context.Context) (reminder.Summary, error) {
			return reminder.Summary{
				Candidates: 2,
				Dispatched: 1,
				Failed:     1,
				Errors:     []error{errors.New("smtp timeout")},
			}, nil
		})
		require.NoError(t, err)

		var summary struct {
			Dispatched int `json:"dispatched"`
			Failed     int `json:"failed"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
		assert.Equal(t, 1, summary.Dispatched)
		assert.Equal(t, 1, summary.Failed)
	})

	t.Run("a failed run is returned", func(t *testing.T) {
		var out bytes.Buffer
		err := runBatch(context.Background(), &out, func(context.Context) (trial.SweepSummary, error) {
			return trial.SweepSummary{}, trial.ErrStaleTrialListing
		})
		assert.ErrorIs(t, err, trial.ErrStaleTrialListing)
		assert.Empty(t, out.String())
	})
}
