package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var resolveUndo bool

var resolveCmd = &cobra.Command{
	Use:   "resolve PROJECT FILE:LINE",
	Short: "Mark a code annotation as resolved",
	Long: `Mark a single code annotation as resolved without removing it from the
projects database. Resolved annotations survive rescans as long as the
annotation is still present in the source; use 'codemarks clean' to
drop them for good.`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveUndo, "undo", false, "Mark the annotation as pending again")
	rootCmd.AddCommand(resolveCmd)
}

// parseFileLine splits a FILE:LINE reference. The last colon separates
// the line number, so Windows drive letters and colons in paths work.
func parseFileLine(ref string) (string, int, error) {
	idx := strings.LastIndex(ref, ":")
	if idx <= 0 || idx == len(ref)-1 {
		return "", 0, fmt.Errorf("invalid FILE:LINE reference %q", ref)
	}
	line, err := strconv.Atoi(ref[idx+1:])
	if err != nil || line < 1 {
		return "", 0, fmt.Errorf("invalid FILE:LINE reference %q", ref)
	}
	return ref[:idx], line, nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	projectName := args[0]
	file, line, err := parseFileLine(args[1])
	if err != nil {
		return err
	}

	st, err := openStore(false)
	if err != nil {
		return err
	}

	if _, err := st.SetResolved(projectName, file, line, !resolveUndo); err != nil {
		return err
	}

	if err := st.Persist(); err != nil {
		return err
	}

	state := "resolved"
	if resolveUndo {
		state = "pending"
	}
	fmt.Printf("Marked %s:%d in project '%s' as %s\n", file, line, projectName, state)
	return nil
}
