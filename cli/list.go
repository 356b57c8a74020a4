package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alpkeskin/gotoon"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/codemarks/store"
)

var (
	listProject  string
	listResolved bool
	listPending  bool
	listJSON     bool
	listTOON     bool
)

var (
	projectNameStyle = lipgloss.NewStyle().Bold(true)
	kindStyles       = map[string]lipgloss.Style{
		"TODO":  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"FIXME": lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		"HACK":  lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
	kindFallbackStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// ListReportJSON is the machine-readable listing for AI agents and
// scripting.
type ListReportJSON struct {
	Projects []store.Project `json:"projects"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List code annotations from the global projects database",
	Long: `List the code annotations recorded by previous scans, grouped by
project. Resolved annotations are marked and can be filtered in or out.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listProject, "project", "", "Only list annotations for this project")
	listCmd.Flags().BoolVar(&listResolved, "resolved", false, "Only list resolved annotations")
	listCmd.Flags().BoolVar(&listPending, "pending", false, "Only list pending annotations")
	listCmd.Flags().BoolVarP(&listJSON, "json", "j", false, "Output in JSON format (for AI agents)")
	listCmd.Flags().BoolVarP(&listTOON, "toon", "t", false, "Output in TOON format (token-efficient for AI agents)")
	listCmd.MarkFlagsMutuallyExclusive("resolved", "pending")
	listCmd.MarkFlagsMutuallyExclusive("json", "toon")
	rootCmd.AddCommand(listCmd)
}

func styledKind(kind string) string {
	if style, ok := kindStyles[kind]; ok {
		return style.Render(kind)
	}
	return kindFallbackStyle.Render(kind)
}

// filterAnnotations applies the --resolved/--pending selection.
func filterAnnotations(annotations []store.Annotation) []store.Annotation {
	if !listResolved && !listPending {
		return annotations
	}
	var out []store.Annotation
	for _, a := range annotations {
		if a.Resolved == listResolved {
			out = append(out, a)
		}
	}
	return out
}

func runList(cmd *cobra.Command, args []string) error {
	st, err := openStore(false)
	if err != nil {
		return err
	}

	names := st.Projects()
	if listProject != "" {
		if _, ok := st.Project(listProject); !ok {
			fmt.Printf("No code annotations found for project '%s'.\n", listProject)
			return nil
		}
		names = []string{listProject}
	}

	var projects []store.Project
	for _, name := range names {
		p, ok := st.Project(name)
		if !ok {
			continue
		}
		annotations := filterAnnotations(p.Annotations)
		if len(annotations) == 0 {
			continue
		}
		projects = append(projects, store.Project{
			Name:        p.Name,
			Annotations: annotations,
			LastScanned: p.LastScanned,
		})
	}

	if listJSON || listTOON {
		report := ListReportJSON{Projects: projects}
		if report.Projects == nil {
			report.Projects = []store.Project{}
		}
		if listTOON {
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

	if len(projects) == 0 {
		fmt.Println("No code annotations found. Run 'codemarks scan' first to scan for annotations.")
		return nil
	}

	for i, p := range projects {
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(projectNameStyle.Render(p.Name))
		for _, a := range p.Annotations {
			marker := "   "
			if a.Resolved {
				marker = "✅ "
			}
			fmt.Printf("%s%s:%d %s %s\n", marker, a.File, a.Line, styledKind(a.Kind), a.Message)
		}
	}

	return nil
}
