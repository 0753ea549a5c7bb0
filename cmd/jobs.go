package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/pipeline"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the configured pipeline jobs and their stages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jobs, err := pipeline.LoadJobs(cfg.Paths.Jobs)
		if err != nil {
			return err
		}
		formatJobs(os.Stdout, jobs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

// formatJobs writes each job with its stores and stages in run order.
func formatJobs(out io.Writer, jobs pipeline.Jobs) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, name := range jobs.Names() {
		job := jobs[name]
		_, _ = fmt.Fprintf(w, "%s\t%s -> %s\t%s\n", job.Name, job.Input, job.Output, job.Description)
		for _, s := range job.Stages {
			detail := s.Key()
			if len(s.Fields) > 0 {
				detail = strings.Join(s.Fields, ",")
			}
			search := ""
			if s.Search {
				search = "search"
			}
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", s.Name, s.Model, detail, search)
		}
	}
	_ = w.Flush()
}
