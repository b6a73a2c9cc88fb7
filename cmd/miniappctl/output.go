package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

const maskValue = "***********"

func printRecord(out io.Writer, format string, record map[string]any) error {
	if format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(record)
	}
	if len(record) == 0 {
		_, err := fmt.Fprintln(out, "No data to display")
		return err
	}
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]any, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []any{key, formatValue(record[key])})
	}
	return printTable(out, []string{"Key", "Value"}, rows)
}

func printTable(out io.Writer, headers []string, rows [][]any) error {
	symbols := tw.NewSymbolCustom("miniappctl").
		WithRow(" ").
		WithColumn(" ").
		WithTopLeft("").
		WithTopMid(" ").
		WithTopRight(" ").
		WithMidLeft(" ").
		WithCenter(" ").
		WithMidRight(" ").
		WithBottomLeft(" ").
		WithBottomMid(" ").
		WithBottomRight(" ")
	rd := tw.Rendition{Symbols: symbols}
	rd.Settings.Lines.ShowHeaderLine = tw.Off

	table := tablewriter.NewTable(out,
		tablewriter.WithRenderer(renderer.NewBlueprint(rd)),
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
			Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
		}),
	)
	headerAny := make([]any, len(headers))
	for i, header := range headers {
		headerAny[i] = header
	}
	table.Header(headerAny...)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "n/a"
	case string:
		return typed
	case map[string]any, []any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	default:
		return fmt.Sprint(typed)
	}
}

func mask(value string, reveal bool) string {
	if reveal || value == "" {
		return value
	}
	return maskValue
}
