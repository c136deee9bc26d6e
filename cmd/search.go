package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/protype-ai/protype/internal/app"
	"github.com/protype-ai/protype/internal/store"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored knowledge",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	core, err := app.OpenCore(ctx, cfg, newLogger())
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer func() { _ = core.Close() }()

	query := strings.Join(args, " ")

	var entries []store.Entry
	if core.Index.Available() {
		hits, qerr := core.Index.Query(ctx, query, searchLimit)
		if qerr == nil {
			for _, h := range hits {
				entries = append(entries, h.Entry)
			}
		}
	}
	if entries == nil {
		entries, err = core.Store.Scan(ctx, query, searchLimit)
		if err != nil {
			return err
		}
	}

	if len(entries) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("Q: %s\nA: %s\n   (source %s, weight %.2f)\n\n", e.Question, e.Answer, e.Source, e.Weight)
	}
	return nil
}
