package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup for issuelens configuration",
	Long:  `Creates a default configuration file with guided prompts.`,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Welcome to issuelens setup!")
	fmt.Println("This will create a configuration file for you.")
	fmt.Println()

	configPath := cfgFile
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file already exists at %s\n", configPath)
		fmt.Print("Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Gather inputs
	fmt.Print("Repository to track (owner/repo): ")
	repoName, _ := reader.ReadString('\n')
	repoName = strings.TrimSpace(repoName)

	fmt.Print("GitHub token (or press Enter to fill in later): ")
	token, _ := reader.ReadString('\n')
	token = strings.TrimSpace(token)

	fmt.Print("Embedding provider (openai/ollama) [openai]: ")
	embedProvider, _ := reader.ReadString('\n')
	embedProvider = strings.TrimSpace(embedProvider)
	if embedProvider == "" {
		embedProvider = "openai"
	}

	fmt.Print("Slack webhook URL (or press Enter to skip): ")
	slackURL, _ := reader.ReadString('\n')
	slackURL = strings.TrimSpace(slackURL)

	fmt.Print("Discord webhook URL (or press Enter to skip): ")
	discordURL, _ := reader.ReadString('\n')
	discordURL = strings.TrimSpace(discordURL)

	// Build config
	configYAML := buildConfigYAML(repoName, token, embedProvider, slackURL, discordURL)

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(configYAML), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", configPath)
	fmt.Println("Edit the file to add API keys and customize settings.")
	return nil
}

func buildConfigYAML(repoName, token, embedProvider, slackURL, discordURL string) string {
	var b strings.Builder

	b.WriteString("# issuelens configuration\n")
	b.WriteString("# See documentation for all available options.\n\n")

	b.WriteString("github:\n")
	b.WriteString("  auth: token\n")
	if token != "" {
		b.WriteString(fmt.Sprintf("  token: %s\n", token))
	} else {
		b.WriteString("  token: ${GITHUB_TOKEN}\n")
	}
	b.WriteString("\n")

	b.WriteString("embedding:\n")
	b.WriteString(fmt.Sprintf("  type: %s\n", embedProvider))
	model, apiKey := embeddingProviderDefaults(embedProvider)
	b.WriteString(fmt.Sprintf("  model: %s\n", model))
	if apiKey != "" {
		b.WriteString(fmt.Sprintf("  api_key: %s\n", apiKey))
	}
	if embedProvider == "ollama" {
		b.WriteString("  url: http://localhost:11434\n")
	}
	b.WriteString("\n")

	b.WriteString("clustering:\n")
	b.WriteString("  similarity_threshold: 0.85\n")
	b.WriteString("  top_k: 5\n")
	b.WriteString("\n")

	b.WriteString("sync:\n")
	b.WriteString("  interval: 30m\n")
	b.WriteString("\n")

	b.WriteString("notify:\n")
	if slackURL != "" {
		b.WriteString(fmt.Sprintf("  slack_webhook: %s\n", slackURL))
	} else {
		b.WriteString("  # slack_webhook: https://hooks.slack.com/services/...\n")
	}
	if discordURL != "" {
		b.WriteString(fmt.Sprintf("  discord_webhook: %s\n", discordURL))
	} else {
		b.WriteString("  # discord_webhook: https://discord.com/api/webhooks/...\n")
	}
	b.WriteString("\n")

	b.WriteString("repos:\n")
	if repoName != "" {
		b.WriteString(fmt.Sprintf("  - name: %s\n", repoName))
	} else {
		b.WriteString("  # - name: owner/repo\n")
		b.WriteString("  #   similarity_threshold: 0.9\n")
	}
	b.WriteString("\n")

	b.WriteString("store:\n")
	b.WriteString("  path: ~/.issuelens/issuelens.db\n")

	return b.String()
}

// embeddingProviderDefaults returns the default model and api_key placeholder
// for the given embedding provider type.
func embeddingProviderDefaults(provider string) (model, apiKey string) {
	switch provider {
	case "ollama":
		return "nomic-embed-text", ""
	default:
		return "text-embedding-3-small", "${OPENAI_API_KEY}"
	}
}
