package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/mchan/issuelens/internal/config"
	"github.com/mchan/issuelens/internal/embed"
	"github.com/mchan/issuelens/internal/github"
	"github.com/mchan/issuelens/internal/notify"
	"github.com/mchan/issuelens/internal/store"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "issuelens",
	Short: "Group a repository's GitHub issues into semantic clusters",
	Long: `Issuelens ingests a GitHub repository's issues, embeds them with an
embedding model, and incrementally clusters similar issues per product
area so hot issue groups can be browsed without re-reading duplicates.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".issuelens/config.yaml"
	}
	return home + "/.issuelens/config.yaml"
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	return config.Load(path)
}

// expandHome resolves a leading ~ in the store path.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

// components holds initialized components for use by subcommands.
type components struct {
	Config   *config.Config
	Store    *store.DB
	GHClient *gogithub.Client
	Embedder embed.Embedder
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// initComponents creates all components from config.
func initComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{
		Config: cfg,
		Logger: logger,
	}

	// Open store
	path := expandHome(cfg.Store.Path)
	if path != ":memory:" {
		if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	c.Store = db

	// Create GitHub client
	switch cfg.GitHub.Auth {
	case "app":
		appID, err := strconv.ParseInt(cfg.GitHub.AppID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing app_id: %w", err)
		}
		installID, err := strconv.ParseInt(cfg.GitHub.InstallationID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing installation_id: %w", err)
		}
		client, err := github.NewAppClient(appID, installID, []byte(cfg.GitHub.PrivateKey), cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("creating GitHub client: %w", err)
		}
		c.GHClient = client
	default:
		if cfg.GitHub.Token == "" {
			return nil, fmt.Errorf("github token is required for token auth")
		}
		c.GHClient = github.NewTokenClient(cfg.GitHub.Token)
	}

	// Create embedding provider
	switch cfg.Embedding.Type {
	case "ollama":
		c.Embedder = embed.NewOllamaEmbedder(cfg.Embedding.URL, cfg.Embedding.Model)
	default:
		c.Embedder = embed.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model)
	}

	// Notifier is optional
	n, err := notify.NewNotifier(cfg.Notify.SlackWebhook, cfg.Notify.DiscordWebhook)
	if err != nil {
		return nil, fmt.Errorf("creating notifier: %w", err)
	}
	c.Notifier = n

	return c, nil
}

// listerFor creates an issue Lister for an "owner/repo" name.
func (c *components) listerFor(repoName string) (*github.Lister, error) {
	owner, repo, err := parseRepoArg(repoName)
	if err != nil {
		return nil, err
	}
	var opts []github.ListerOption
	if c.Config.Sync.MaxPages > 0 {
		opts = append(opts, github.WithMaxPages(c.Config.Sync.MaxPages))
	}
	return github.NewLister(c.GHClient, owner, repo, c.Logger, opts...), nil
}

// parseRepoArg splits an "owner/repo" string and returns owner and repo.
func parseRepoArg(repoArg string) (owner, repo string, err error) {
	parts := strings.SplitN(repoArg, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format: expected owner/repo, got %q", repoArg)
	}
	return parts[0], parts[1], nil
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return "."
	}
	return path[:idx]
}
