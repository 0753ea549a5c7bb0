package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/citation"
	"github.com/sells-group/outreach-cli/internal/completion"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/prompt"
	"github.com/sells-group/outreach-cli/internal/recordio"
	"github.com/sells-group/outreach-cli/internal/store"
)

// contentVar is the template variable holding the field a fan-out stage is
// converting.
const contentVar = "content"

// Runner executes jobs record by record.
type Runner struct {
	completer  completion.Completer
	calc       *cost.Calculator
	runs       store.Store
	templates  *prompt.Set
	globals    map[string]string
	system     string
	promptsDir string
	dataDir    string
}

// Option configures a Runner.
type Option func(*Runner)

// WithRunLog records runs and per-record stage phases in s.
func WithRunLog(s store.Store) Option {
	return func(r *Runner) { r.runs = s }
}

// WithTemplates uses set instead of loading templates from disk.
func WithTemplates(set *prompt.Set) Option {
	return func(r *Runner) { r.templates = set }
}

// WithGlobals sets the global template variables.
func WithGlobals(vars map[string]string) Option {
	return func(r *Runner) { r.globals = vars }
}

// WithSystemPrompt sets the system message for non-search stages.
func WithSystemPrompt(s string) Option {
	return func(r *Runner) { r.system = s }
}

// WithPromptsDir sets where <template>.txt files are read from.
func WithPromptsDir(dir string) Option {
	return func(r *Runner) { r.promptsDir = dir }
}

// WithDataDir sets the directory job input and output paths resolve against.
func WithDataDir(dir string) Option {
	return func(r *Runner) { r.dataDir = dir }
}

// NewRunner creates a Runner.
func NewRunner(c completion.Completer, calc *cost.Calculator, opts ...Option) *Runner {
	r := &Runner{
		completer:  c,
		calc:       calc,
		promptsDir: "prompts",
		dataDir:    "data",
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RunOptions adjusts one invocation of a job. Input and Output replace the
// job's paths as given, without resolving against the data directory.
type RunOptions struct {
	Input   string
	Output  string
	Skip    int
	Limit   int
	Charset string
}

func (r *Runner) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.dataDir, p)
}

// Run processes every pending input record through the job's stages and
// appends each finished record to the output store before starting the next.
// Records whose Email is already in the output are skipped, so an
// interrupted run resumes where it stopped. The first error stops the run.
func (r *Runner) Run(ctx context.Context, job Job, opts RunOptions) (*model.RunResult, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	input := opts.Input
	if input == "" {
		input = r.resolve(job.Input)
	}
	output := opts.Output
	if output == "" {
		output = r.resolve(job.Output)
	}
	rows := r.resolve(job.RowsOutput)

	log := zap.L().With(
		zap.String("job", job.Name),
		zap.String("input", input),
		zap.String("output", output),
	)

	set := r.templates
	if set == nil {
		var err error
		set, err = prompt.LoadSet(r.promptsDir, job.TemplateNames())
		if err != nil {
			return nil, err
		}
	}

	recs, err := recordio.ReadRecords(input, recordio.CSVOptions{Charset: opts.Charset})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load input for job %s", job.Name)
	}
	recs = skip(recs, opts.Skip)
	recs = applyFilter(recs, job.Filter)

	ledger, err := LoadLedger(output)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load ledger for job %s", job.Name)
	}

	sink, err := openSinks(output, rows, job.Columns)
	if err != nil {
		return nil, err
	}
	defer sink.Close() //nolint:errcheck

	runID, err := r.startRun(ctx, job.Name, input, output)
	if err != nil {
		return nil, err
	}

	log.Info("pipeline: starting job",
		zap.Int("records", len(recs)),
		zap.Int("already_done", ledger.Len()),
		zap.Int("pending", len(ledger.Pending(recs))),
	)

	result := &model.RunResult{}
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return r.finishRun(ctx, runID, result, eris.Wrap(err, "pipeline: run cancelled"))
		}
		email := rec.Email()
		if email == "" {
			// Without an Email the record can never enter the ledger, so
			// processing it would repeat on every resume.
			log.Warn("pipeline: skipping record without Email")
			result.Skipped++
			continue
		}
		if ledger.Done(email) {
			result.Skipped++
			continue
		}
		if opts.Limit > 0 && result.Processed >= opts.Limit {
			break
		}

		start := time.Now()
		out, tokens, err := r.process(ctx, runID, job, set, rec)
		if err != nil {
			return r.finishRun(ctx, runID, result, err)
		}
		if err := sink.Append(out); err != nil {
			return r.finishRun(ctx, runID, result, eris.Wrapf(err, "pipeline: append %s", email))
		}
		ledger.Mark(email)

		recCost, _ := out[model.KeyTotalCost].(float64)
		result.Processed++
		result.TotalTokens += tokens
		result.TotalCost += recCost

		log.Info("pipeline: record complete",
			zap.String("email", email),
			zap.Int64("tokens", tokens),
			zap.Float64("cost", recCost),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	log.Info("pipeline: job complete",
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Float64("total_cost", result.TotalCost),
	)
	return r.finishRun(ctx, runID, result, nil)
}

// process runs every stage on a copy of rec and returns the finished record
// with its total_cost and the tokens spent.
func (r *Runner) process(ctx context.Context, runID string, job Job, set *prompt.Set, rec model.Record) (model.Record, int64, error) {
	out := rec.Clone()
	for _, k := range job.DropKeys {
		delete(out, k)
	}

	var (
		fields []cost.Field
		tokens int64
	)
	for _, stage := range job.Stages {
		if len(stage.Fields) > 0 {
			for _, field := range stage.Fields {
				content := out.String(field)
				if strings.TrimSpace(content) == "" {
					continue
				}
				vars := prompt.Vars(out, r.globals)
				vars[contentVar] = content

				key := stage.UsageKey(field)
				res, err := r.call(ctx, runID, out.Email(), key, stage, set, vars)
				if err != nil {
					return nil, tokens, err
				}
				out[field] = res.Text
				out.SetUsage(key, res.Usage)
				fields = append(fields, cost.Field{Key: key, Model: stage.Model})
				tokens += res.Usage.TotalTokens
			}
			continue
		}

		key := stage.Key()
		res, err := r.call(ctx, runID, out.Email(), key, stage, set, prompt.Vars(out, r.globals))
		if err != nil {
			return nil, tokens, err
		}
		out[key] = res.Text
		out.SetUsage(key, res.Usage)
		if stage.Search {
			out[key+model.SuffixCitations] = strings.Join(res.Citations, "; ")
			out[key+model.SuffixCitationMapping] = citation.Mapping(res.Text, res.Citations)
		}
		fields = append(fields, cost.Field{Key: key, Model: stage.Model})
		tokens += res.Usage.TotalTokens
	}

	out[model.KeyTotalCost] = r.calc.Record(out, fields)
	return out, tokens, nil
}

// call renders the stage template and requests one completion, logging the
// step as a phase of the run.
func (r *Runner) call(ctx context.Context, runID, email, key string, stage Stage, set *prompt.Set, vars map[string]string) (*completion.Result, error) {
	text, err := set.Render(stage.TemplateName(), vars)
	if err != nil {
		return nil, err
	}

	system := stage.System
	if system == "" && !stage.Search {
		system = r.system
	}

	phase := r.startPhase(ctx, runID, email, key)
	start := time.Now()
	res, err := r.completer.Complete(ctx, completion.Request{
		Model:     stage.Model,
		System:    system,
		Prompt:    text,
		MaxTokens: stage.MaxTokens,
		Effort:    stage.Effort,
	})

	pr := &model.PhaseResult{
		Name:     key,
		Status:   model.PhaseStatusComplete,
		Model:    stage.Model,
		Duration: time.Since(start).Milliseconds(),
	}
	if err != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = err.Error()
		r.completePhase(ctx, phase, pr)
		return nil, err
	}
	pr.TokenUsage = res.Usage
	pr.Cost = r.calc.Usage(stage.Model, res.Usage)
	r.completePhase(ctx, phase, pr)

	zap.L().Debug("pipeline: stage complete",
		zap.String("email", email),
		zap.String("stage", key),
		zap.String("model", stage.Model),
		zap.Int64("tokens", res.Usage.TotalTokens),
		zap.Float64("cost", pr.Cost),
	)
	return res, nil
}

func (r *Runner) startRun(ctx context.Context, job, input, output string) (string, error) {
	if r.runs == nil {
		return "", nil
	}
	run, err := r.runs.CreateRun(ctx, job, input, output)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: create run")
	}
	return run.ID, nil
}

// finishRun stores the outcome and returns result together with runErr.
func (r *Runner) finishRun(ctx context.Context, runID string, result *model.RunResult, runErr error) (*model.RunResult, error) {
	if runErr != nil {
		result.Error = runErr.Error()
	}
	if r.runs == nil || runID == "" {
		return result, runErr
	}
	// The run context may already be cancelled; the outcome is still recorded.
	bg := context.WithoutCancel(ctx)
	if err := r.runs.UpdateRunResult(bg, runID, result); err != nil {
		zap.L().Warn("pipeline: failed to record run result", zap.String("run_id", runID), zap.Error(err))
	}
	if errors.Is(runErr, context.Canceled) {
		if err := r.runs.UpdateRunStatus(bg, runID, model.RunStatusCancelled); err != nil {
			zap.L().Warn("pipeline: failed to mark run cancelled", zap.String("run_id", runID), zap.Error(err))
		}
	}
	return result, runErr
}

func (r *Runner) startPhase(ctx context.Context, runID, email, name string) *model.RunPhase {
	if r.runs == nil || runID == "" {
		return nil
	}
	p, err := r.runs.CreatePhase(ctx, runID, email, name)
	if err != nil {
		zap.L().Warn("pipeline: failed to create phase", zap.String("stage", name), zap.Error(err))
		return nil
	}
	return p
}

func (r *Runner) completePhase(ctx context.Context, p *model.RunPhase, result *model.PhaseResult) {
	if p == nil {
		return
	}
	if err := r.runs.CompletePhase(context.WithoutCancel(ctx), p.ID, result); err != nil {
		zap.L().Warn("pipeline: failed to complete phase", zap.String("stage", p.Name), zap.Error(err))
	}
}

func skip(recs []model.Record, n int) []model.Record {
	if n <= 0 {
		return recs
	}
	if n >= len(recs) {
		return nil
	}
	return recs[n:]
}

func applyFilter(recs []model.Record, filter string) []model.Record {
	if filter != FilterHasFeedback {
		return recs
	}
	out := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		if strings.TrimSpace(r.String(model.FlagFeedback)) != "" {
			out = append(out, r)
		}
	}
	return out
}

func openSinks(output, rows string, columns []string) (recordio.Sink, error) {
	var sinks recordio.MultiSink
	if strings.EqualFold(filepath.Ext(output), ".jsonl") {
		s, err := recordio.OpenJSONLSink(output)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	} else {
		s, err := recordio.OpenJSONArraySink(output)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if rows != "" {
		s, err := recordio.OpenCSVSink(rows, columns)
		if err != nil {
			sinks.Close() //nolint:errcheck
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
