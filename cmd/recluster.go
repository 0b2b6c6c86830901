package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mchan/issuelens/internal/cluster"
	"github.com/mchan/issuelens/internal/notify"
)

var (
	reclusterProduct       string
	reclusterTargetVersion string
	reclusterThreshold     float64
	reclusterTopK          int
)

var reclusterCmd = &cobra.Command{
	Use:   "recluster owner/repo",
	Short: "Rebuild issue clusters for a repository",
	Long: `Recluster wipes and rebuilds the clusters for a repository's product
buckets from the issues already synced into the store. With --product it
rebuilds a single bucket; otherwise every product seen in the repository is
rebuilt. Threshold and top-k default to the configured values for the repo.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecluster,
}

func init() {
	reclusterCmd.Flags().StringVar(&reclusterProduct, "product", "", "rebuild only this product bucket")
	reclusterCmd.Flags().StringVar(&reclusterTargetVersion, "target-version", "", "target version recorded on the rebuilt clusters")
	reclusterCmd.Flags().Float64Var(&reclusterThreshold, "threshold", 0, "similarity threshold override (0 uses the configured value)")
	reclusterCmd.Flags().IntVar(&reclusterTopK, "top-k", 0, "candidate-set size override (0 uses the configured value)")
	rootCmd.AddCommand(reclusterCmd)
}

func runRecluster(cmd *cobra.Command, args []string) error {
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

	repoName := args[0]
	if _, _, err := parseRepoArg(repoName); err != nil {
		return err
	}

	threshold := reclusterThreshold
	if threshold == 0 {
		threshold = cfg.ThresholdFor(repoName)
	}
	topK := reclusterTopK
	if topK == 0 {
		topK = cfg.TopKFor(repoName)
	}

	products := []string{reclusterProduct}
	if reclusterProduct == "" {
		products, err = c.Store.ListProducts(repoName)
		if err != nil {
			return fmt.Errorf("listing products: %w", err)
		}
		if len(products) == 0 {
			return fmt.Errorf("no synced issues found for %s; run sync first", repoName)
		}
	}

	engine := cluster.New(c.Store, c.Logger)
	for _, product := range products {
		if err := reclusterOne(cmd.Context(), c, engine, repoName, product, threshold, topK); err != nil {
			return err
		}
	}
	return nil
}

func reclusterOne(ctx context.Context, c *components, engine *cluster.Engine, repoName, product string, threshold float64, topK int) error {
	result, err := engine.Recluster(ctx, cluster.Params{
		Repo:          repoName,
		Product:       product,
		TargetVersion: reclusterTargetVersion,
		Threshold:     threshold,
		TopK:          topK,
	})
	if err != nil {
		return fmt.Errorf("reclustering %s/%s: %w", repoName, product, err)
	}

	fmt.Printf("%s [%s]: %d clusters, %d issues mapped\n",
		repoName, product, result.ClustersCreated, result.IssuesMapped)

	if c.Notifier != nil {
		report := notify.RunReport{
			Repo:            repoName,
			Kind:            "recluster",
			Product:         product,
			ClustersCreated: result.ClustersCreated,
			IssuesMapped:    result.IssuesMapped,
		}
		if err := c.Notifier.Notify(ctx, report); err != nil {
			c.Logger.Warn("notification failed", "error", err)
		}
	}
	return nil
}
