package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/protype-ai/protype/internal/app"
	"github.com/protype-ai/protype/internal/cache"
	"github.com/protype-ai/protype/internal/store"
)

// taughtWeight is the trust assigned to answers taught on the command line.
const taughtWeight = 0.5

var teachCmd = &cobra.Command{
	Use:   "teach [question] [answer]",
	Short: "Teach the knowledge base an answer",
	Args:  cobra.ExactArgs(2),
	RunE:  runTeach,
}

func init() {
	rootCmd.AddCommand(teachCmd)
}

func runTeach(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	question, answer := args[0], args[1]
	if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return fmt.Errorf("question and answer must not be empty")
	}

	ctx := context.Background()
	core, err := app.OpenCore(ctx, cfg, newLogger())
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer func() { _ = core.Close() }()

	if err := core.Store.Upsert(ctx, question, answer, taughtWeight, "user", "cli"); err != nil {
		return err
	}
	// A Redis answer cache outlives this process; drop any stale entry so
	// the next engine start serves the corrected answer.
	if addr := cfg.Cache.RedisAddr; addr != "" {
		if rc, rerr := cache.NewRedis(ctx, addr, cfg.Cache.TTL, core.Logger); rerr == nil {
			rc.Invalidate(ctx, question)
			_ = rc.Close()
		} else {
			core.Logger.Debug("redis cache unreachable, skipping invalidation", "error", rerr)
		}
	}
	if err := core.Activity.Record(ctx, "cli", "taught", store.Normalize(question)); err != nil {
		core.Logger.Debug("activity record failed", "error", err)
	}

	fmt.Println("Learned.")
	return nil
}
