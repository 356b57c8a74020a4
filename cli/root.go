package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codemarks",
	Short: "A CLI tool for scanning and managing code annotations (TODO, FIXME, HACK)",
	Long: `CodeMarks scans source trees for inline code annotations (TODO, FIXME,
HACK, or anything a custom pattern names) and tracks them in a global
per-user database, grouped by project.

Annotations keep their identity across rescans: marking one resolved
survives unrelated edits, and annotations whose source line disappears
are removed on the next scan of their file.

Typical flow:
  codemarks scan              Scan the current directory and record annotations
  codemarks list              Show everything the database knows about
  codemarks resolve ...       Mark an annotation as handled
  codemarks watch             Keep the database fresh as files change
  codemarks ci                Fail a build when annotations are present`,
	SilenceUsage: true,
}

// Execute runs the root command. Errors are printed by cobra; the
// caller only needs the exit status.
func Execute() error {
	return rootCmd.Execute()
}
