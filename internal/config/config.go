package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	GitHub     GitHubConfig     `yaml:"github"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Notify     NotifyConfig     `yaml:"notify"`
	Store      StoreConfig      `yaml:"store"`
	Repos      []RepoConfig     `yaml:"repos"`
	Sync       SyncConfig       `yaml:"sync"`
}

// GitHubConfig holds GitHub authentication settings. Auth is "token" or
// "app".
type GitHubConfig struct {
	Auth           string `yaml:"auth"`
	Token          string `yaml:"token"`
	AppID          string `yaml:"app_id"`
	InstallationID string `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKey     string `yaml:"private_key"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Type   string `yaml:"type"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"`
}

// ClusteringConfig holds default clustering parameters; per-repo overrides
// win.
type ClusteringConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TopK                int     `yaml:"top_k"`
}

// NotifyConfig holds notification webhook URLs.
type NotifyConfig struct {
	SlackWebhook   string `yaml:"slack_webhook"`
	DiscordWebhook string `yaml:"discord_webhook"`
}

// StoreConfig holds storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig holds sync scheduling parameters.
type SyncConfig struct {
	IntervalRaw string `yaml:"interval"`
	MaxPages    int    `yaml:"max_pages"`
}

// RepoConfig holds per-repository overrides.
type RepoConfig struct {
	Name                string   `yaml:"name"`
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	TopK                *int     `yaml:"top_k"`
}

// Interval returns the parsed sync interval duration.
func (s SyncConfig) Interval() (time.Duration, error) {
	if s.IntervalRaw == "" {
		return 30 * time.Minute, nil
	}
	return time.ParseDuration(s.IntervalRaw)
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.GitHub.Auth == "" {
		cfg.GitHub.Auth = "token"
	}
	if cfg.Embedding.Type == "" {
		cfg.Embedding.Type = "openai"
	}
	if cfg.Clustering.SimilarityThreshold == 0 {
		cfg.Clustering.SimilarityThreshold = 0.85
	}
	if cfg.Clustering.TopK == 0 {
		cfg.Clustering.TopK = 5
	}
	if cfg.Sync.IntervalRaw == "" {
		cfg.Sync.IntervalRaw = "30m"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.issuelens/issuelens.db"
	}
}

func validate(cfg *Config) error {
	if cfg.Clustering.SimilarityThreshold < 0 || cfg.Clustering.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1, got %f", cfg.Clustering.SimilarityThreshold)
	}
	if cfg.Clustering.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", cfg.Clustering.TopK)
	}

	if _, err := time.ParseDuration(cfg.Sync.IntervalRaw); err != nil {
		return fmt.Errorf("invalid interval %q: %w", cfg.Sync.IntervalRaw, err)
	}
	if cfg.Sync.MaxPages < 0 {
		return fmt.Errorf("max_pages must be non-negative, got %d", cfg.Sync.MaxPages)
	}

	switch cfg.GitHub.Auth {
	case "token", "app":
	default:
		return fmt.Errorf("unsupported github auth type: %q", cfg.GitHub.Auth)
	}

	validEmbedTypes := map[string]bool{"openai": true, "ollama": true}
	if !validEmbedTypes[cfg.Embedding.Type] {
		return fmt.Errorf("unsupported embedding provider type: %s", cfg.Embedding.Type)
	}

	for _, repo := range cfg.Repos {
		if repo.SimilarityThreshold != nil {
			if *repo.SimilarityThreshold < 0 || *repo.SimilarityThreshold > 1 {
				return fmt.Errorf("repo %s: similarity_threshold must be between 0 and 1, got %f",
					repo.Name, *repo.SimilarityThreshold)
			}
		}
		if repo.TopK != nil && *repo.TopK < 1 {
			return fmt.Errorf("repo %s: top_k must be at least 1, got %d", repo.Name, *repo.TopK)
		}
	}

	return nil
}

// ThresholdFor returns the similarity threshold for a repo, honoring
// per-repo overrides.
func (c *Config) ThresholdFor(repoName string) float64 {
	for _, r := range c.Repos {
		if r.Name == repoName && r.SimilarityThreshold != nil {
			return *r.SimilarityThreshold
		}
	}
	return c.Clustering.SimilarityThreshold
}

// TopKFor returns the candidate-set size for a repo, honoring per-repo
// overrides.
func (c *Config) TopKFor(repoName string) int {
	for _, r := range c.Repos {
		if r.Name == repoName && r.TopK != nil {
			return *r.TopK
		}
	}
	return c.Clustering.TopK
}
