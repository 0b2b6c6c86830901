package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mchan/issuelens/internal/cluster"
	"github.com/mchan/issuelens/internal/config"
	"github.com/mchan/issuelens/internal/pubsub"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the periodic sync and recluster scheduler",
	Long: `Serve runs until interrupted, syncing every configured repository on
the configured interval and rebuilding its clusters after each successful
sync. An immediate round runs at startup so a fresh deployment has data
before the first tick.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Repos) == 0 {
		return fmt.Errorf("no repositories configured")
	}

	interval, err := cfg.Sync.Interval()
	if err != nil {
		return err
	}

	c, err := initComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := pubsub.NewBroker[pubsub.Job]()
	jobs := broker.Subscribe(ctx)

	go schedule(ctx, broker, cfg.Repos, interval, logger)

	logger.Info("scheduler started", "repos", len(cfg.Repos), "interval", interval)

	engine := cluster.New(c.Store, c.Logger)
	for job := range jobs {
		if err := handleJob(ctx, c, engine, job); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("job failed", "error", err)
		}
	}

	logger.Info("scheduler stopped")
	return nil
}

// schedule publishes one sync job per repo immediately and then on every
// tick. Recluster jobs are published by handleJob after a sync succeeds, so
// clusters are only rebuilt over fresh data.
func schedule(ctx context.Context, broker *pubsub.Broker[pubsub.Job], repos []config.RepoConfig, interval time.Duration, logger *slog.Logger) {
	publish := func() {
		for _, r := range repos {
			broker.Publish(pubsub.Job{Sync: &pubsub.SyncJob{Repo: r.Name}})
		}
	}

	publish()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Debug("sync tick")
			publish()
		}
	}
}

// handleJob dispatches one job from the broker.
func handleJob(ctx context.Context, c *components, engine *cluster.Engine, job pubsub.Job) error {
	switch {
	case job.Sync != nil:
		if err := syncOne(ctx, c, job.Sync.Repo, job.Sync.FullSync); err != nil {
			return err
		}
		return reclusterAll(ctx, c, engine, job.Sync.Repo)

	case job.Recluster != nil:
		j := job.Recluster
		return reclusterOne(ctx, c, engine, j.Repo, j.Product, j.Threshold, j.TopK)

	default:
		return nil
	}
}

// reclusterAll rebuilds every product bucket of a repository with its
// configured parameters.
func reclusterAll(ctx context.Context, c *components, engine *cluster.Engine, repoName string) error {
	products, err := c.Store.ListProducts(repoName)
	if err != nil {
		return fmt.Errorf("listing products: %w", err)
	}

	threshold := c.Config.ThresholdFor(repoName)
	topK := c.Config.TopKFor(repoName)
	for _, product := range products {
		if err := reclusterOne(ctx, c, engine, repoName, product, threshold, topK); err != nil {
			return err
		}
	}
	return nil
}
