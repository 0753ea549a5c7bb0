package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Job:       "research",
			Status:    model.RunStatusComplete,
			Result:    &model.RunResult{Processed: 12, Skipped: 3, TotalCost: 0.4215},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Job:       "draft",
			Status:    model.RunStatusRunning,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "JOB")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "research")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "$0.4215")
	assert.Contains(t, output, "draft")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
}

func TestFormatPhases(t *testing.T) {
	phases := []model.RunPhase{
		{
			Email:  "ann@acme.com",
			Name:   "background",
			Status: model.PhaseStatusComplete,
			Result: &model.PhaseResult{
				Model:      "sonar-pro",
				Duration:   1500,
				TokenUsage: model.TokenUsage{TotalTokens: 420},
				Cost:       0.021,
			},
		},
		{
			Email:  "bob@beta.com",
			Name:   "email_body",
			Status: model.PhaseStatusFailed,
			Result: &model.PhaseResult{
				Model: "o1",
				Error: "completion: o1: context deadline exceeded while waiting for the response",
			},
		},
		{Email: "cy@gamma.com", Name: "why_them", Status: model.PhaseStatusRunning},
	}

	var buf bytes.Buffer
	formatPhases(&buf, phases)

	output := buf.String()
	assert.Contains(t, output, "ann@acme.com")
	assert.Contains(t, output, "sonar-pro")
	assert.Contains(t, output, "420")
	assert.Contains(t, output, "$0.0210")
	assert.Contains(t, output, "1.5s")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "...")
	assert.Contains(t, output, "cy@gamma.com")
}

func TestRunsStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	runs := []model.Run{
		{
			ID:        "1",
			Status:    model.RunStatusComplete,
			Result:    &model.RunResult{Processed: 10, TotalTokens: 1000, TotalCost: 1.5},
			CreatedAt: now,
			UpdatedAt: now.Add(60 * time.Second),
		},
		{
			ID:        "2",
			Status:    model.RunStatusComplete,
			Result:    &model.RunResult{Processed: 5, TotalTokens: 500, TotalCost: 0.5},
			CreatedAt: now,
			UpdatedAt: now.Add(120 * time.Second),
		},
		{
			ID:        "3",
			Status:    model.RunStatusFailed,
			Result:    &model.RunResult{Processed: 2, TotalTokens: 100, TotalCost: 0.25, Error: "boom"},
			CreatedAt: now,
			UpdatedAt: now.Add(10 * time.Second),
		},
		{
			ID:        "4",
			Status:    model.RunStatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:        "5",
			Status:    model.RunStatusCancelled,
			Result:    &model.RunResult{Processed: 1, Error: "pipeline: run cancelled: context canceled"},
			CreatedAt: now,
			UpdatedAt: now.Add(5 * time.Second),
		},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Cancelled)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 18, s.Processed)
	assert.Equal(t, int64(1600), s.Tokens)
	assert.InDelta(t, 2.25, s.Cost, 1e-9)
	assert.InDelta(t, 90.0, s.AvgDurSecs, 0.01)
}

func TestRunsStats_Empty(t *testing.T) {
	s := computeRunStats(nil)
	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 0.0, s.AvgDurSecs)
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{
		Total:      10,
		Complete:   7,
		Failed:     2,
		Cancelled:  3,
		Running:    1,
		Processed:  120,
		Tokens:     54321,
		Cost:       3.75,
		AvgDurSecs: 45.5,
	})

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "10")
	assert.Contains(t, output, "Records processed:")
	assert.Contains(t, output, "Cancelled:")
	assert.Contains(t, output, "54321")
	assert.Contains(t, output, "$3.7500")
	assert.Contains(t, output, "45.5s")
}

func TestFormatRunStats_NoDuration(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{Total: 1, Failed: 1})
	assert.NotContains(t, buf.String(), "Avg duration")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}
