package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/prompt"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

var runCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run a pipeline job over its input store",
	Long: "Processes every pending record of the job's input through its stages, appending each " +
		"finished record to the output store. Records already in the output are skipped, so an " +
		"interrupted run resumes where it stopped. Failed runs are restarted with backoff unless --once is set.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		jobs, err := pipeline.LoadJobs(cfg.Paths.Jobs)
		if err != nil {
			return err
		}
		job, err := jobs.Get(args[0])
		if err != nil {
			return err
		}

		globals, err := prompt.LoadVariables(cfg.Paths.Variables)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		offline, _ := cmd.Flags().GetBool("offline")
		runner := pipeline.NewRunner(
			initCompleter(cfg, offline),
			cost.NewCalculator(pricing(cfg)),
			pipeline.WithRunLog(st),
			pipeline.WithGlobals(globals),
			pipeline.WithSystemPrompt(cfg.Completion.SystemPrompt),
			pipeline.WithPromptsDir(cfg.Paths.Prompts),
			pipeline.WithDataDir(cfg.Paths.Data),
		)

		opts := pipeline.RunOptions{}
		opts.Input, _ = cmd.Flags().GetString("input")
		opts.Output, _ = cmd.Flags().GetString("output")
		opts.Skip, _ = cmd.Flags().GetInt("skip")
		opts.Limit, _ = cmd.Flags().GetInt("limit")
		opts.Charset, _ = cmd.Flags().GetString("charset")

		var sup *resilience.Supervisor
		if once, _ := cmd.Flags().GetBool("once"); !once {
			sup = resilience.NewSupervisor(resilience.ScheduleFromSecs(cfg.Retry.BackoffSecs))
		}
		result, err := runJob(ctx, runner, job, opts, sup)
		if err != nil {
			return eris.Wrapf(err, "run %s", job.Name)
		}

		fmt.Fprintf(os.Stdout, "%s: processed %d, skipped %d, tokens %d, cost $%.4f\n",
			job.Name, result.Processed, result.Skipped, result.TotalTokens, result.TotalCost)
		return nil
	},
}

// jobRunner is the part of pipeline.Runner the command drives.
type jobRunner interface {
	Run(ctx context.Context, job pipeline.Job, opts pipeline.RunOptions) (*model.RunResult, error)
}

// runJob runs the job under sup until it completes, or once when sup is nil.
// Each restart resumes from the records already written.
func runJob(ctx context.Context, r jobRunner, job pipeline.Job, opts pipeline.RunOptions, sup *resilience.Supervisor) (*model.RunResult, error) {
	if sup == nil {
		return r.Run(ctx, job, opts)
	}

	var result *model.RunResult
	failures, err := sup.Run(ctx, func(ctx context.Context) error {
		res, err := r.Run(ctx, job, opts)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	if failures > 0 {
		zap.L().Info("run: completed after restarts",
			zap.String("job", job.Name),
			zap.Int("failures", failures),
		)
	}
	return result, nil
}

func init() {
	runCmd.Flags().Bool("once", false, "run a single attempt without restarting on failure")
	runCmd.Flags().Bool("offline", false, "answer every completion locally instead of calling providers")
	runCmd.Flags().Int("skip", 0, "skip the first N input records")
	runCmd.Flags().Int("limit", 0, "process at most N records (0 = no limit)")
	runCmd.Flags().String("input", "", "input store path (overrides the job's input)")
	runCmd.Flags().String("output", "", "output store path (overrides the job's output)")
	runCmd.Flags().String("charset", "", "legacy encoding of a CSV input (e.g. windows-1252)")
	rootCmd.AddCommand(runCmd)
}
