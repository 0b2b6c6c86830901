package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// topClusterLimit bounds the per-product cluster listing.
const topClusterLimit = 10

var statusCmd = &cobra.Command{
	Use:   "status [owner/repo]",
	Short: "Show sync state and top clusters",
	Long: `Status prints each repository's sync checkpoint, latest release, and
its hottest clusters per product, ranked by popularity.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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
		if err := printRepoStatus(c, repoName); err != nil {
			return err
		}
	}
	return nil
}

func printRepoStatus(c *components, repoName string) error {
	fmt.Printf("=== %s ===\n", repoName)

	state, err := c.Store.GetSyncState(repoName)
	if err != nil {
		return fmt.Errorf("reading sync state: %w", err)
	}
	if state == nil {
		fmt.Println("  never synced")
		fmt.Println()
		return nil
	}
	if state.LastSyncedAt != nil {
		fmt.Printf("  last synced:  %s (%s ago)\n",
			state.LastSyncedAt.Format(time.RFC3339), time.Since(*state.LastSyncedAt).Round(time.Second))
	} else {
		fmt.Println("  last synced:  full sync in progress")
	}
	fmt.Printf("  highest issue: #%d\n", state.LastIssueNumber)

	release, err := c.Store.GetReleaseState(repoName)
	if err != nil {
		return fmt.Errorf("reading release state: %w", err)
	}
	if release != nil {
		fmt.Printf("  latest release: %s\n", release.Tag)
	}

	products, err := c.Store.ListProducts(repoName)
	if err != nil {
		return fmt.Errorf("listing products: %w", err)
	}

	for _, product := range products {
		clusters, err := c.Store.TopClusters(repoName, product, topClusterLimit)
		if err != nil {
			return fmt.Errorf("listing clusters for %s: %w", product, err)
		}
		if len(clusters) == 0 {
			continue
		}

		fmt.Printf("\n  [%s]\n", product)
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "  \tCLUSTER\tSIZE\tPOPULARITY\tREPRESENTATIVE")
		for _, cl := range clusters {
			rep := "-"
			if cl.Representative != nil {
				rep = fmt.Sprintf("#%d", *cl.Representative)
			}
			fmt.Fprintf(w, "  \t%d\t%d\t%.2f\t%s\n", cl.ID, cl.Size, cl.Popularity, rep)
		}
		w.Flush()
	}

	fmt.Println()
	return nil
}
