package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/syssam/quill"
	"github.com/syssam/quill/template"
)

// encode writes v as json, yaml or msgpack.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "msgpack":
		return msgpack.NewEncoder(w).Encode(v)
	}
	return fmt.Errorf("unsupported output %q", format)
}

func renderResult(w io.Writer, format string, res *quill.Result) error {
	switch format {
	case "table":
		return renderTable(w, res)
	case "yaml":
		return encode(w, format, res.Plain())
	}
	return encode(w, format, res)
}

func renderTable(w io.Writer, res *quill.Result) error {
	if res.Len() == 0 {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}
	columns := res.Columns()
	if len(columns) == 0 {
		columns = res.First().Keys()
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, row := range res.All() {
		r := make(table.Row, len(columns))
		for i, c := range columns {
			r[i] = formatValue(row.Get(c))
		}
		t.AppendRow(r)
	}
	t.Render()
	_, err := fmt.Fprintf(w, "(%d rows)\n", res.Len())
	return err
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case string:
		return v
	case time.Time:
		return v.Format(template.TimeFormat)
	}
	return fmt.Sprint(v)
}
