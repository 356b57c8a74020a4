package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alpkeskin/gotoon"
	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/codemarks/config"
	"github.com/yoanbernabeu/codemarks/project"
)

var (
	scanDirectory string
	scanIgnore    []string
	scanPattern   string
	scanEphemeral bool
	scanVerbose   bool
	scanJSON      bool
	scanTOON      bool
)

// ScanReportJSON is the machine-readable scan summary for AI agents
// and scripting.
type ScanReportJSON struct {
	Project      string            `json:"project"`
	Directory    string            `json:"directory"`
	FilesScanned int               `json:"files_scanned"`
	Added        int               `json:"added"`
	Kept         int               `json:"kept"`
	Removed      int               `json:"removed"`
	Total        int               `json:"total"`
	Skipped      []SkippedFileJSON `json:"skipped,omitempty"`
}

// SkippedFileJSON records one file the scanner could not process.
type SkippedFileJSON struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a directory for code annotations (TODO, FIXME, HACK)",
	Long: `Scan a directory tree for code annotations and merge the findings into
the global projects database.

The scan:
- Detects the project name from the root's manifest (Cargo.toml,
  package.json, go.mod, ...) or falls back to the directory name
- Honors .gitignore files at every level plus configured ignore globs
- Skips binary files and records unreadable files without aborting
- Preserves the resolved flag of annotations that are still present
- Removes annotations whose source line no longer exists`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanDirectory, "directory", "d", ".", "Directory to scan")
	scanCmd.Flags().StringArrayVar(&scanIgnore, "ignore", nil, "Additional ignore glob (can be repeated)")
	scanCmd.Flags().StringVar(&scanPattern, "pattern", "", "Override the configured annotation pattern")
	scanCmd.Flags().BoolVar(&scanEphemeral, "ephemeral", false, "Do not touch the global projects database")
	scanCmd.Flags().BoolVarP(&scanVerbose, "verbose", "v", false, "Report skipped files")
	scanCmd.Flags().BoolVarP(&scanJSON, "json", "j", false, "Output summary in JSON format (for AI agents)")
	scanCmd.Flags().BoolVarP(&scanTOON, "toon", "t", false, "Output summary in TOON format (token-efficient for AI agents)")
	scanCmd.MarkFlagsMutuallyExclusive("json", "toon")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	dir, err := resolveDirectory(scanDirectory)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sc, err := buildScanner(dir, cfg, scanIgnore, scanPattern)
	if err != nil {
		return err
	}

	st, err := openStore(scanEphemeral)
	if err != nil {
		return err
	}

	projectName := project.DetectName(dir)

	result, err := sc.ScanRoot(ctx)
	if err != nil {
		return fmt.Errorf("error scanning directory: %w", err)
	}

	merge := st.Merge(projectName, result.Annotations, nil)

	if !scanEphemeral {
		if err := st.Persist(); err != nil {
			return err
		}
	}

	total := 0
	if p, ok := st.Project(projectName); ok {
		total = len(p.Annotations)
	}

	if scanJSON || scanTOON {
		report := ScanReportJSON{
			Project:      projectName,
			Directory:    dir,
			FilesScanned: result.FilesScanned,
			Added:        merge.Added,
			Kept:         merge.Kept,
			Removed:      merge.Removed,
			Total:        total,
		}
		if scanVerbose {
			for _, s := range result.Skipped {
				report.Skipped = append(report.Skipped, SkippedFileJSON{Path: s.Path, Reason: s.Reason})
			}
		}
		if scanTOON {
			output, err := gotoon.Encode(report)
			if err != nil {
				return fmt.Errorf("failed to encode TOON: %w", err)
			}
			fmt.Println(output)
			return nil
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	if scanVerbose {
		for _, s := range result.Skipped {
			fmt.Printf("Skipped %s: %s\n", s.Path, s.Reason)
		}
	}

	fmt.Printf("Project '%s': %d added, %d kept, %d removed (%d files scanned)\n",
		projectName, merge.Added, merge.Kept, merge.Removed, result.FilesScanned)

	stats := st.Stats()
	active := stats.Annotations - stats.Resolved
	if scanEphemeral {
		fmt.Printf("Found %d code annotations (ephemeral run, nothing saved)\n", active)
	} else {
		fmt.Printf("Found %d code annotations and saved to global projects database\n", active)
	}

	return nil
}
