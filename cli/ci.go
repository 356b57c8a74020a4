package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alpkeskin/gotoon"
	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/codemarks/config"
	"github.com/yoanbernabeu/codemarks/store"
)

var (
	ciDirectory string
	ciIgnore    []string
	ciPattern   string
	ciVerbose   bool
	ciJSON      bool
	ciTOON      bool
)

// CIReportJSON is the machine-readable gate result for pipelines and
// AI agents.
type CIReportJSON struct {
	Found       int                `json:"found"`
	Annotations []store.Annotation `json:"annotations"`
}

var ciCmd = &cobra.Command{
	Use:   "ci",
	Short: "Fail if any code annotations are found (for CI pipelines)",
	Long: `Scan a directory and exit with status 1 if any code annotations match
the pattern, without touching the global projects database. Intended as
a gate in CI pipelines that must stay free of TODO, FIXME and HACK
markers.`,
	RunE: runCI,
}

func init() {
	ciCmd.Flags().StringVarP(&ciDirectory, "directory", "d", ".", "Directory to scan")
	ciCmd.Flags().StringArrayVar(&ciIgnore, "ignore", nil, "Additional ignore glob (can be repeated)")
	ciCmd.Flags().StringVar(&ciPattern, "pattern", "", "Override the configured annotation pattern")
	ciCmd.Flags().BoolVarP(&ciVerbose, "verbose", "v", false, "Report skipped files on stderr")
	ciCmd.Flags().BoolVarP(&ciJSON, "json", "j", false, "Output findings in JSON format (for AI agents)")
	ciCmd.Flags().BoolVarP(&ciTOON, "toon", "t", false, "Output findings in TOON format (token-efficient for AI agents)")
	ciCmd.MarkFlagsMutuallyExclusive("json", "toon")
	rootCmd.AddCommand(ciCmd)
}

func runCI(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	dir, err := resolveDirectory(ciDirectory)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sc, err := buildScanner(dir, cfg, ciIgnore, ciPattern)
	if err != nil {
		return err
	}

	result, err := sc.ScanRoot(ctx)
	if err != nil {
		return fmt.Errorf("error scanning directory: %w", err)
	}

	if ciVerbose {
		for _, s := range result.Skipped {
			fmt.Fprintf(os.Stderr, "Skipped %s: %s\n", s.Path, s.Reason)
		}
	}

	found := len(result.Annotations)

	if ciJSON || ciTOON {
		report := CIReportJSON{Found: found, Annotations: result.Annotations}
		if report.Annotations == nil {
			report.Annotations = []store.Annotation{}
		}
		if ciTOON {
			output, err := gotoon.Encode(report)
			if err != nil {
				return fmt.Errorf("failed to encode TOON: %w", err)
			}
			fmt.Println(output)
		} else {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(report); err != nil {
				return err
			}
		}
		if found > 0 {
			os.Exit(1)
		}
		return nil
	}

	for _, a := range result.Annotations {
		fmt.Printf("%s:%d: %s: %s\n", a.File, a.Line, a.Kind, a.Message)
	}

	if found > 0 {
		fmt.Printf("Found %d codemarks matching pattern.\n", found)
		os.Exit(1)
	}

	fmt.Println("No codemarks found matching pattern.")
	return nil
}
