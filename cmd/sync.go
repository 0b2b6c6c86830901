package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mchan/issuelens/internal/config"
	"github.com/mchan/issuelens/internal/notify"
	"github.com/mchan/issuelens/internal/sync"
)

var syncFull bool

var syncCmd = &cobra.Command{
	Use:   "sync [owner/repo]",
	Short: "Ingest and embed a repository's issues",
	Long: `Sync lists a repository's issues from GitHub, upserts them into the
local store, and embeds any issue whose content changed. The first run walks
the full history; later runs fetch only issues updated or created since the
last checkpoint. Pass --full to force a complete re-listing.

With no argument, every repository from the config file is synced in turn.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "force a full re-listing even when a checkpoint exists")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := initComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Store.Close()

	repos := repoNames(cfg, args)
	if len(repos) == 0 {
		return fmt.Errorf("no repository given and none configured")
	}

	for _, repoName := range repos {
		if err := syncOne(cmd.Context(), c, repoName, syncFull); err != nil {
			return err
		}
	}
	return nil
}

// repoNames resolves which repositories a command operates on: the argument
// when given, otherwise the configured list.
func repoNames(cfg *config.Config, args []string) []string {
	if len(args) == 1 {
		return []string{args[0]}
	}
	names := make([]string, 0, len(cfg.Repos))
	for _, r := range cfg.Repos {
		names = append(names, r.Name)
	}
	return names
}

func syncOne(ctx context.Context, c *components, repoName string, full bool) error {
	lister, err := c.listerFor(repoName)
	if err != nil {
		return err
	}

	syncer := sync.New(repoName, lister, c.Store, c.Embedder, c.Logger)
	result, err := syncer.Run(ctx, sync.Options{FullSync: full})
	if err != nil {
		return fmt.Errorf("syncing %s: %w", repoName, err)
	}

	fmt.Printf("%s: %d issues processed (%s), %d embedded, %d reused, %d failed\n",
		repoName, result.Processed, result.Mode, result.Embedded, result.Reused, result.EmbedFailed)

	if c.Notifier != nil {
		report := notify.RunReport{
			Repo:        repoName,
			Kind:        "sync",
			Mode:        result.Mode,
			Processed:   result.Processed,
			Embedded:    result.Embedded,
			Reused:      result.Reused,
			EmbedFailed: result.EmbedFailed,
		}
		if err := c.Notifier.Notify(ctx, report); err != nil {
			c.Logger.Warn("notification failed", "error", err)
		}
	}
	return nil
}
