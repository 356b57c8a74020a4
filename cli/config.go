package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/codemarks/config"
	"github.com/yoanbernabeu/codemarks/scanner"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the global codemarks configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration",
	RunE:  runConfigShow,
}

var configSetPatternCmd = &cobra.Command{
	Use:   "set-pattern PATTERN",
	Short: "Set the global annotation pattern",
	Long: `Set the regular expression used to detect code annotations. The pattern
must capture the marker kind and the message, either as groups 1 and 2
or as named groups 'kind' and 'message'.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigSetPattern,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the annotation pattern to the default",
	RunE:  runConfigReset,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetPatternCmd)
	configCmd.AddCommand(configResetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Println("Global code annotation pattern:")
	fmt.Println(cfg.Pattern)
	fmt.Printf("Watch debounce: %dms\n", cfg.Watch.DebounceMs)
	if len(cfg.Ignore) > 0 {
		fmt.Printf("Ignore globs: %s\n", strings.Join(cfg.Ignore, ", "))
	}

	if configPath, err := config.Path(); err == nil {
		fmt.Printf("\nConfig file location: %s\n", configPath)
	}
	if projectsPath, err := config.ProjectsPath(); err == nil {
		fmt.Printf("Projects file location: %s\n", projectsPath)
	}

	return nil
}

func runConfigSetPattern(cmd *cobra.Command, args []string) error {
	pattern := args[0]

	// Reject patterns the scanner could not use before they reach disk.
	if _, err := scanner.NewMatcher(pattern); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Pattern = pattern
	if err := cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Global code annotation pattern updated to: %s\n", pattern)
	return nil
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Pattern = config.DefaultPattern
	if err := cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Global code annotation pattern reset to default: %s\n", config.DefaultPattern)
	return nil
}
