package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/boddenberg/agency-tool-gateway/internal/tools"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type toolEntry struct {
	Name        string `json:"name" yaml:"name"`
	Service     string `json:"service" yaml:"service"`
	Description string `json:"description" yaml:"description"`
	Output      string `json:"output" yaml:"output"`
	Route       string `json:"route" yaml:"route"`
}

func newToolsCmd() *cobra.Command {
	var output, service string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var entries []toolEntry
			for _, t := range tools.All() {
				if service != "" && t.Service != service {
					continue
				}
				entries = append(entries, toolEntry{
					Name:        t.Name(),
					Service:     t.Service,
					Description: t.Definition.Description,
					Output:      string(t.Output),
					Route:       t.Route.Method + " /" + t.Service + t.Route.Path,
				})
			}
			return printTools(cmd.OutOrStdout(), output, entries)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	cmd.Flags().StringVar(&service, "service", "", "only list tools of this upstream")
	return cmd
}

func printTools(w io.Writer, format string, entries []toolEntry) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(entries)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSERVICE\tOUTPUT\tROUTE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Service, e.Output, e.Route)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
