package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/codemarks/store"
)

var (
	cleanDryRun  bool
	cleanProject string
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove resolved code annotations from the projects database",
	Long: `Remove resolved code annotations from the global projects database.
Projects left without any annotations are removed entirely. Use
--dry-run to preview the cleanup without changing anything.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "Show what would be removed without removing it")
	cleanCmd.Flags().StringVar(&cleanProject, "project", "", "Only clean this project")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	st, err := openStore(false)
	if err != nil {
		return err
	}

	summary := st.PruneResolved(store.PruneFilter{Project: cleanProject}, cleanDryRun)

	if summary.FilterMissing {
		fmt.Printf("Project '%s' not found in projects database\n", cleanProject)
		return nil
	}

	names := make([]string, 0, len(summary.ByProject))
	for name := range summary.ByProject {
		names = append(names, name)
	}
	sort.Strings(names)

	dropped := make(map[string]bool, len(summary.ProjectsDropped))
	for _, name := range summary.ProjectsDropped {
		dropped[name] = true
	}

	for _, name := range names {
		count := summary.ByProject[name]
		if cleanDryRun {
			fmt.Printf("Would remove %d resolved annotations from project '%s'\n", count, name)
			if dropped[name] {
				fmt.Printf("Would remove project '%s' (all %d annotations are resolved)\n", name, count)
			}
		} else if dropped[name] {
			fmt.Printf("Removed project '%s' (all %d annotations were resolved)\n", name, count)
		}
	}

	if summary.Total == 0 {
		fmt.Println("No resolved annotations found to clean")
		return nil
	}

	if cleanDryRun {
		fmt.Println("\nDry run summary:")
		fmt.Printf("Would remove %d resolved annotations from %d projects\n", summary.Total, len(summary.ByProject))
		if cleanProject != "" {
			fmt.Printf("Filter applied: only project '%s'\n", cleanProject)
		}
		fmt.Println("Use 'codemarks clean' (without --dry-run) to perform the actual cleanup")
		return nil
	}

	if err := st.Persist(); err != nil {
		return err
	}

	fmt.Printf("Successfully removed %d resolved annotations from %d projects\n", summary.Total, len(summary.ByProject))
	for _, name := range names {
		fmt.Printf("  - %s: %d resolved annotations removed\n", name, summary.ByProject[name])
	}

	return nil
}
