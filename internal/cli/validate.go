package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gatehouse-dev/gatehouse/internal/config"
	"github.com/gatehouse-dev/gatehouse/internal/registry"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration files",
	Long: `Validate gatehouse configuration files.

Checks that the configuration parses, every hook's regex patterns compile,
and declared priorities, decisions, phases and enforcement levels are legal.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	loader, err := config.NewLoader(projectDir)
	if err != nil {
		return fmt.Errorf("failed to create config loader: %w", err)
	}

	if configFile != "" {
		if err := validateConfigFile(loader, configFile); err != nil {
			return err
		}
		fmt.Printf("Configuration is valid: %s\n", configFile)
		return nil
	}

	globalPath := loader.GlobalConfigPath()
	projectPath := loader.ProjectConfigPath()
	found := false

	if config.Exists(globalPath) {
		found = true
		fmt.Printf("Validating global config: %s\n", globalPath)
		if err := validateConfigFile(loader, globalPath); err != nil {
			return err
		}
		fmt.Println("  Valid!")
	}

	if config.Exists(projectPath) {
		found = true
		fmt.Printf("Validating project config: %s\n", projectPath)
		if err := validateConfigFile(loader, projectPath); err != nil {
			return err
		}
		fmt.Println("  Valid!")
	}

	if !found {
		fmt.Println("No configuration files found; built-in defaults apply.")
	}

	return nil
}

// validateConfigFile parses one file and builds a registry from it, which
// compiles every pattern and checks every enum
func validateConfigFile(loader *config.Loader, path string) error {
	cfg, err := loader.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("  Failed to parse: %w", err)
	}
	if _, err := registry.New(cfg); err != nil {
		return fmt.Errorf("  Invalid: %w", err)
	}
	return nil
}
