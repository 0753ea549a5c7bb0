package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/completion"
	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/prompt"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

type flakyRunner struct {
	failures int
	calls    int
}

func (f *flakyRunner) Run(_ context.Context, _ pipeline.Job, _ pipeline.RunOptions) (*model.RunResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return &model.RunResult{Processed: 1}, errors.New("connection reset by peer")
	}
	return &model.RunResult{Processed: 3, Skipped: 1}, nil
}

func noWaitSupervisor(waits *[]time.Duration) *resilience.Supervisor {
	sup := resilience.NewSupervisor(resilience.DefaultSchedule())
	sup.Sleep = func(_ context.Context, d time.Duration) bool {
		*waits = append(*waits, d)
		return true
	}
	return sup
}

func TestRunJob_RestartsUntilComplete(t *testing.T) {
	r := &flakyRunner{failures: 2}
	var waits []time.Duration

	res, err := runJob(context.Background(), r, pipeline.Job{Name: "draft"}, pipeline.RunOptions{}, noWaitSupervisor(&waits))
	require.NoError(t, err)
	assert.Equal(t, 3, r.calls)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, []time.Duration{30 * time.Second, 2 * time.Minute}, waits)
}

func TestRunJob_Once(t *testing.T) {
	r := &flakyRunner{failures: 1}
	_, err := runJob(context.Background(), r, pipeline.Job{Name: "draft"}, pipeline.RunOptions{}, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, r.calls)
}

func TestRunJob_CancelledStopsRestarts(t *testing.T) {
	r := &flakyRunner{failures: 100}
	ctx, cancel := context.WithCancel(context.Background())
	sup := resilience.NewSupervisor(resilience.DefaultSchedule())
	sup.Sleep = func(context.Context, time.Duration) bool {
		cancel()
		return false
	}

	_, err := runJob(ctx, r, pipeline.Job{Name: "draft"}, pipeline.RunOptions{}, sup)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, r.calls)
}

func TestInitCompleter_Offline(t *testing.T) {
	c := initCompleter(&config.Config{}, true)
	res, err := c.Complete(context.Background(), completion.Request{Model: "o1", Prompt: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, "ereht olleh", res.Text)
	assert.Equal(t, int64(2), res.Usage.PromptTokens)
}

func TestPricing_Overrides(t *testing.T) {
	rates := pricing(&config.Config{
		Pricing: config.PricingConfig{Models: map[string]config.ModelPricing{
			"o1":          {Input: 15, Output: 60},
			"custom-mini": {Input: 0.1, Output: 0.2},
		}},
	})
	assert.Equal(t, 15.0, rates.Models["o1"].Input)
	assert.Equal(t, 0.2, rates.Models["custom-mini"].Output)
	assert.Equal(t, 3, rates.Models["sonar-pro"].DefaultSearches)
}

// Every shipped template must render once its job's inputs and earlier
// stages are present, so a misspelt placeholder fails here rather than
// mid-batch.
func TestDefaultJobs_ShippedTemplatesRender(t *testing.T) {
	globals, err := prompt.LoadVariables("../variables")
	require.NoError(t, err)
	require.NotEmpty(t, globals)

	rec := model.Record{}
	for _, k := range model.ContactColumns {
		rec[k] = "x"
	}
	rec[model.FlagFeedback] = "shorter"

	jobs := pipeline.DefaultJobs()
	for _, name := range []string{"research", "draft", "dedupe", "html", "feedback"} {
		job := jobs[name]
		set, err := prompt.LoadSet("../prompts", job.TemplateNames())
		require.NoError(t, err, name)

		for _, stage := range job.Stages {
			vars := prompt.Vars(rec, globals)
			vars["content"] = "# heading"
			_, err := set.Render(stage.TemplateName(), vars)
			require.NoError(t, err, "%s/%s", name, stage.Name)
			rec[stage.Key()] = "out"
		}
	}
}

func TestDataPath(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{Paths: config.PathsConfig{Data: "data"}}

	assert.Equal(t, "data/research.json", dataPath("research.json"))
	assert.Equal(t, "/tmp/x.json", dataPath("/tmp/x.json"))
	assert.Equal(t, "", dataPath(""))

	cfg.Review = config.ReviewConfig{Records: "data/review.json", Feedback: "data/feedback.json"}
	assert.Equal(t, "data/feedback.json", exportInput("feedback"))
	assert.Equal(t, "data/review.json", exportInput("drafts"))
}
