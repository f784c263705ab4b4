package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mahir/coursebot/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up coursebot.
The wizard will guide you through configuring an AI provider profile.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	reader := bufio.NewReader(cmd.InOrStdin())

	fmt.Println("Coursebot configuration")
	fmt.Println()

	provider, err := promptChoice(reader, "AI provider", []string{"anthropic", "openai", "gemini"}, "anthropic")
	if err != nil {
		return err
	}

	apiKey, err := prompt(reader, "API key", "")
	if err != nil {
		return err
	}
	if apiKey == "" {
		return fmt.Errorf("API key is required")
	}

	model, err := prompt(reader, "Model", defaultModelFor(provider))
	if err != nil {
		return err
	}

	cfg.AI.Profiles = []config.AIProfile{
		{
			ID:       "default",
			Provider: provider,
			APIKey:   apiKey,
			Model:    model,
		},
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("\nConfiguration saved to: %s\n", loader.GetConfigPath())
	fmt.Println("\nYou can now start coursebot with: coursebot serve")

	return nil
}

func prompt(reader *bufio.Reader, label, def string) (string, error) {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}

	value := strings.TrimSpace(line)
	if value == "" {
		return def, nil
	}
	return value, nil
}

func promptChoice(reader *bufio.Reader, label string, options []string, def string) (string, error) {
	value, err := prompt(reader, fmt.Sprintf("%s (%s)", label, strings.Join(options, ", ")), def)
	if err != nil {
		return "", err
	}

	for _, opt := range options {
		if value == opt {
			return value, nil
		}
	}

	fmt.Fprintf(os.Stderr, "invalid choice %q, using %s\n", value, def)
	return def, nil
}

func defaultModelFor(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-20250514"
	case "openai":
		return "gpt-4o-mini"
	case "gemini":
		return "gemini-2.0-flash"
	default:
		return ""
	}
}
