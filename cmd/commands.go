package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go2ctl/go2ctl/internal/robot/catalog"
	"github.com/go2ctl/go2ctl/internal/util"
)

type CommandsOptions struct {
	OutputFormat string
	Topic        string
}

func NewCommandsCommand() *cobra.Command {
	opts := &CommandsOptions{}

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List the commands the robot understands",
		Example: `  go2ctl commands
  go2ctl commands --output json
  go2ctl commands --topic rt/api/sport/request`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog()
			if err != nil {
				return err
			}
			return renderCatalog(cmd.OutOrStdout(), cat, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.OutputFormat, "output", "o", "text", "Output format (json or text)")
	flags.StringVar(&opts.Topic, "topic", "", "Only show commands published on this topic")
	cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "text"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

type catalogRow struct {
	Name        string         `json:"name"`
	Topic       string         `json:"topic"`
	APIID       int            `json:"api_id"`
	Params      []string       `json:"params,omitempty"`
	Defaults    map[string]any `json:"defaults,omitempty"`
	Description string         `json:"description,omitempty"`
}

func catalogRows(cat *catalog.Catalog, topic string) []catalogRow {
	var rows []catalogRow
	for _, e := range cat.Entries() {
		if topic != "" && e.Topic != topic {
			continue
		}
		row := catalogRow{Name: e.Name, Topic: e.Topic, APIID: e.APIID, Defaults: e.Defaults, Description: e.Description}
		for _, p := range e.Params {
			s := p.Name + ":" + p.Kind.String()
			if !p.Required {
				s += "?"
			}
			row.Params = append(row.Params, s)
		}
		rows = append(rows, row)
	}
	return rows
}

func renderCatalog(w io.Writer, cat *catalog.Catalog, opts *CommandsOptions) error {
	rows := catalogRows(cat, opts.Topic)

	if opts.OutputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if rows == nil {
			rows = []catalogRow{}
		}
		return enc.Encode(rows)
	}

	columns := []util.TableColumn{
		{Header: "NAME", Key: "name"},
		{Header: "API ID", Key: "api_id"},
		{Header: "PARAMS", Key: "params"},
		{Header: "DESCRIPTION", Key: "description"},
	}
	data := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		data = append(data, map[string]interface{}{
			"name":        r.Name,
			"api_id":      r.APIID,
			"params":      formatParams(r.Params, r.Defaults),
			"description": r.Description,
		})
	}
	util.RenderTable(w, columns, data)
	return nil
}

func formatParams(params []string, defaults map[string]any) string {
	if len(params) == 0 {
		return "-"
	}
	s := strings.Join(params, ",")
	if len(defaults) == 0 {
		return s
	}
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, defaults[k]))
	}
	return s + " (" + strings.Join(parts, ",") + ")"
}
