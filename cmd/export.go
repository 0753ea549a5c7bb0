package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/export"
	"github.com/sells-group/outreach-cli/internal/review"
)

var exportCmd = &cobra.Command{
	Use:   "export <drafts|feedback>",
	Short: "Export reviewed records as a contact list",
	Long: "Writes the reviewed records selected by the profile to <export>/<list>.csv (and/or .xlsx). " +
		"The drafts profile marks every exported record so it is not sent twice.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		profile, err := export.ProfileFor(args[0])
		if err != nil {
			return err
		}

		list, _ := cmd.Flags().GetString("list")
		if list == "" {
			return eris.New("export: --list is required")
		}
		format, _ := cmd.Flags().GetString("format")
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Paths.Export
		}

		input, _ := cmd.Flags().GetString("input")
		if input == "" {
			input = exportInput(profile.Name)
		}

		res, err := export.Run(review.NewFileStore(input), profile, export.Options{
			Dir:    dir,
			List:   list,
			Format: format,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "export: %d records\n", res.Exported)
		for _, f := range res.Files {
			fmt.Fprintf(os.Stdout, "  %s\n", f)
		}
		return nil
	},
}

// exportInput returns the review store a profile reads by default.
func exportInput(profile string) string {
	if profile == "feedback" {
		return cfg.Review.Feedback
	}
	return cfg.Review.Records
}

func init() {
	exportCmd.Flags().String("list", "", "contact list name, used as the file name")
	exportCmd.Flags().String("format", export.FormatCSV, "output format: csv, xlsx or both")
	exportCmd.Flags().String("dir", "", "output directory (default paths.export)")
	exportCmd.Flags().String("input", "", "review store to export (default review.records, or review.feedback for the feedback profile)")
	rootCmd.AddCommand(exportCmd)
}
