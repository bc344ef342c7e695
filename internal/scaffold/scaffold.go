// Package scaffold creates a starter baton.yml for new projects.
package scaffold

import (
	"embed"
	"fmt"
	"os"

	"github.com/hebbzhu/baton/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// ConfigFile is the name of the configuration file baton scaffolds and
// commands load by default.
const ConfigFile = "baton.yml"

// CheckExisting returns an error when baton.yml already exists in the
// current directory, nil otherwise.
func CheckExisting() error {
	if _, err := os.Stat(ConfigFile); err == nil {
		return fmt.Errorf("project already initialized\n\nFound existing: %s\n\nUse 'baton init --force' to reinitialize (this will overwrite existing configuration)", ConfigFile)
	}
	return nil
}

// Initialize writes the starter baton.yml.
// If force is true, an existing baton.yml is removed first.
func Initialize(force bool) error {
	if force {
		if _, err := os.Stat(ConfigFile); err == nil {
			fmt.Println("⚠️  Removing existing baton.yml...")
			if err := os.Remove(ConfigFile); err != nil {
				return fmt.Errorf("failed to remove %s: %w", ConfigFile, err)
			}
		}
	}

	content, err := templatesFS.ReadFile("templates/baton.yml.tmpl")
	if err != nil {
		return fmt.Errorf("failed to read baton.yml template: %w", err)
	}
	if err := os.WriteFile(ConfigFile, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ConfigFile, err)
	}

	// The created file must load through the real config path, not just
	// parse as YAML.
	if _, err := config.Load(ConfigFile); err != nil {
		return fmt.Errorf("created %s failed validation: %w", ConfigFile, err)
	}

	return nil
}

// PrintSuccess prints the success message with next steps.
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized baton project!")
	fmt.Println("\nCreated:")
	fmt.Println("  ✓ baton.yml")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Export your API key: export ANTHROPIC_API_KEY=sk-...")
	fmt.Println("  2. Customize baton.yml (models, backend, budgets)")
	fmt.Println("  3. Run a task: baton run --objective \"Write a haiku about Go\"")
}
