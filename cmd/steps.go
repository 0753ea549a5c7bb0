package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/pipeline"
)

// dataPath resolves a relative store name against the data directory.
func dataPath(name string) string {
	if name == "" || filepath.IsAbs(name) || cfg.Paths.Data == "" {
		return name
	}
	return filepath.Join(cfg.Paths.Data, name)
}

// pathFlag returns the flag value as given, or the default store name
// resolved against the data directory.
func pathFlag(cmd *cobra.Command, name, def string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return dataPath(def)
}

// -- fixjson --

var fixjsonCmd = &cobra.Command{
	Use:   "fixjson",
	Short: "Convert the research JSON Lines output into a JSON array",
	Long:  "Reads a JSON Lines store, drops malformed lines with a warning, and writes the records as one JSON array.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in := pathFlag(cmd, "input", "research.jsonl")
		out := pathFlag(cmd, "output", "research.json")

		res, err := pipeline.Fixjson(in, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "fixjson: wrote %d records to %s (%d malformed lines dropped)\n", res.Records, out, res.Skipped)
		return nil
	},
}

// -- cite --

var citeCmd = &cobra.Command{
	Use:   "cite",
	Short: "Link citation markers in the research fields to their sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in := pathFlag(cmd, "input", "drafts.json")
		out := pathFlag(cmd, "output", "cited.json")

		res, err := pipeline.Cite(in, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "cite: wrote %d records to %s\n", res.Records, out)
		return nil
	},
}

// -- seed --

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Add default review flags to every cited record",
	Long:  "Adds exclude, email_feedback, flag, viewed and exported to each record in place, keeping values already set. The flags carry through dedupe and html into the review store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := pathFlag(cmd, "input", "cited.json")

		res, err := pipeline.Seed(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "seed: %d records, %d already seeded\n", res.Records, res.Skipped)
		return nil
	},
}

func init() {
	fixjsonCmd.Flags().String("input", "", "JSON Lines input (default <data>/research.jsonl)")
	fixjsonCmd.Flags().String("output", "", "JSON array output (default <data>/research.json)")

	citeCmd.Flags().String("input", "", "drafted records (default <data>/drafts.json)")
	citeCmd.Flags().String("output", "", "cited records (default <data>/cited.json)")

	seedCmd.Flags().String("input", "", "JSON array store to seed in place (default <data>/cited.json)")

	rootCmd.AddCommand(fixjsonCmd)
	rootCmd.AddCommand(citeCmd)
	rootCmd.AddCommand(seedCmd)
}
