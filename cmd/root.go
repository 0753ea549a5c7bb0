package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "outreach-cli",
	Short: "Prospect research and cold-email drafting pipeline",
	Long: `Researches prospects with search-grounded models, drafts personalized emails,
serves them for human review, and exports approved drafts as contact lists.

A typical campaign runs these steps in order:

  run research     search-grounded background per contact (JSON Lines)
  fixjson          turn the research lines into a JSON array
  run draft        draft email bodies and subjects from the research
  cite             link [n] citation markers to their sources
  seed             add the review flags to every record
  run dedupe       pick one prospect per company
  run html         render the drafts for review
  serve            review, edit and flag drafts in the browser
  run feedback     redraft the emails that got reviewer feedback
  export drafts    write the approved drafts as a contact list

Every "run" resumes where it stopped: records whose Email is already in the
job's output are skipped. "runs" shows the history kept in the local store.

Configuration comes from config.yaml in the working directory, a .env file,
and OUTREACH_* environment variables. Provider keys also honour
AZURE_OPENAI_API_KEY, PERPLEXITY_API_KEY and ANTHROPIC_API_KEY.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
