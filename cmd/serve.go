package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/review"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review web server",
	Long:  "Serves the review store for reading, flagging and giving feedback on drafted emails.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Review.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		records := review.NewFileStore(cfg.Review.Records)
		feedback := review.NewFileStore(cfg.Review.Feedback)

		// Fail fast on an unreadable store rather than on the first request.
		var g errgroup.Group
		for _, st := range []*review.FileStore{records, feedback} {
			g.Go(func() error {
				recs, err := st.List()
				if err != nil {
					return err
				}
				zap.L().Info("review: store loaded",
					zap.String("path", st.Path()),
					zap.Int("records", len(recs)),
				)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		var speech review.Synthesizer
		if len(cfg.Speech.Command) > 0 {
			speech = review.NewCommandSynthesizer(
				cfg.Speech.Command,
				filepath.Base(cfg.Speech.OutputFile),
				time.Duration(cfg.Speech.TimeoutSec)*time.Second,
			)
		}

		srv := review.New(review.Options{
			Records:        records,
			Feedback:       feedback,
			Speech:         speech,
			OutputDir:      cfg.Paths.Output,
			AllowedOrigins: cfg.Review.AllowedOrigins,
		})

		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Review.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
