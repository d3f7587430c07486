package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"sigs.k8s.io/yaml"
)

// printer renders command results as a table, json or yaml
type printer struct {
	out    io.Writer
	format string
}

func newPrinter(out io.Writer, format string) *printer {
	if format == "" {
		format = "table"
	}
	return &printer{out: out, format: format}
}

// print writes v in json or yaml, or calls renderTable for the table format
func (p *printer) print(v interface{}, header table.Row, rows []table.Row) error {
	switch p.format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		_, err = fmt.Fprintln(p.out, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		_, err = p.out.Write(data)
		return err
	case "table":
		tw := table.NewWriter()
		tw.SetStyle(table.StyleLight)
		tw.SetOutputMirror(p.out)
		tw.AppendHeader(header)
		tw.AppendRows(rows)
		tw.Render()
		return nil
	}
	return fmt.Errorf("unsupported output format %q", p.format)
}

// message prints a plain status line; structured formats get an object instead
func (p *printer) message(v interface{}, format string, args ...interface{}) error {
	if p.format == "table" {
		_, err := fmt.Fprintf(p.out, format+"\n", args...)
		return err
	}
	return p.print(v, nil, nil)
}

func humanBytes(b float64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%.0f B", b)
	}
	div, exp := float64(unit), 0
	for n := b / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", b/div, "KMGTP"[exp])
}
