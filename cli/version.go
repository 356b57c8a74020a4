package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridable at build time via -ldflags.
var version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codemarks version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
