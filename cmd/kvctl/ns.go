package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kloia/kubevirt-api-client/internal/report"
)

func newNamespaceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ns",
		Aliases: []string{"namespace", "namespaces"},
		Short:   "Find namespaces by label or annotation",
	}
	cmd.AddCommand(newNamespaceListCmd(a))
	return cmd
}

// splitSelector parses key or key=value
func splitSelector(s string) (string, *string) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return key, nil
	}
	return key, &value
}

func newNamespaceListCmd(a *app) *cobra.Command {
	var label, annotation string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List namespaces carrying a label or annotation",
		Long: `List namespaces. --label and --annotation take KEY or KEY=VALUE; with only
a key, any value matches. The matched labels or annotations are shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if label != "" && annotation != "" {
				return fmt.Errorf("--label and --annotation are mutually exclusive")
			}
			client, _, err := a.client()
			if err != nil {
				return err
			}
			namespaces, err := client.ListNamespaces(cmd.Context(), "")
			if err != nil {
				return err
			}

			var rows []report.NamespaceRow
			switch {
			case label != "":
				key, value := splitSelector(label)
				rows = report.FilterByLabel(namespaces, key, value)
			case annotation != "":
				key, value := splitSelector(annotation)
				rows = report.FilterByAnnotation(namespaces, key, value)
			default:
				rows = make([]report.NamespaceRow, 0, len(namespaces))
				for _, ns := range namespaces {
					rows = append(rows, report.NamespaceRow{Name: ns.Name(), Values: ns.Labels()})
				}
			}

			tableRows := make([]table.Row, 0, len(rows))
			for _, r := range rows {
				tableRows = append(tableRows, table.Row{r.Name, formatPairs(r.Values)})
			}
			return a.printer().print(rows, table.Row{"Name", "Values"}, tableRows)
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "Label KEY or KEY=VALUE to match")
	cmd.Flags().StringVar(&annotation, "annotation", "", "Annotation KEY or KEY=VALUE to match")
	return cmd
}

func formatPairs(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return strings.Join(pairs, "\n")
}
