package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/protype-ai/protype/internal/app"
)

var learnFor time.Duration

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Run background learning in the foreground",
	Long: `Runs the learning scheduler without the HTTP server: crawling topics,
generating answers for open questions, filling graph gaps, and replaying
unanswered questions. Stops after --for elapses, or on interrupt when
--for is zero.`,
	RunE: runLearn,
}

func init() {
	learnCmd.Flags().DurationVar(&learnFor, "for", 0, "how long to learn (0 = until interrupted)")
	rootCmd.AddCommand(learnCmd)
}

func runLearn(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		_ = a.Close(closeCtx)
	}()

	a.Scheduler.Start()
	fmt.Println("Learning... press Ctrl-C to stop.")

	if learnFor > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(learnFor):
		}
	} else {
		<-ctx.Done()
	}

	if err := a.Scheduler.Stop(shutdownTimeout); err != nil {
		return err
	}

	status := a.Scheduler.Status()
	fmt.Printf("Done: %d learning cycles, %d reinforcement cycles.\n",
		status.FastCycles, status.ReinforceCycles)
	return nil
}
