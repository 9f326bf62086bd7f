package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// TextWriter outputs a table for the terminal.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, s *Status) error {
	ew := &errWriter{w: w}

	ew.printf("Cache: %s\n", s.Cache)
	if s.Network != "" {
		ew.printf("Network: %s\n", s.Network)
	}
	if s.Collection != nil && s.Collection.MintAddress != "" {
		ew.printf("Collection mint: %s\n", s.Collection.MintAddress)
	} else {
		ew.println("Collection mint: (not minted)")
	}
	ew.println(strings.Repeat("─", 60))
	ew.printf("Items: %d total, %d uploaded, %d minted\n", s.Totals.Items, s.Totals.Uploaded, s.Totals.Minted)

	if len(s.rows()) == 0 {
		ew.println("\nCache is empty. Run upload to get started.")
		return ew.err
	}
	ew.println("")
	if ew.err != nil {
		return ew.err
	}

	tw := newTable(s)
	tw.SetOutputMirror(w)
	style := table.StyleLight
	style.Options.DrawBorder = false
	tw.SetStyle(style)
	tw.Render()
	return nil
}

func newTable(s *Status) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Name", "Edition", "Uploaded", "Mint"})
	for _, r := range s.rows() {
		tw.AppendRow(table.Row{r.Name, r.EditionName, yesNo(r.Uploaded), orDash(r.MintAddress)})
	}
	tw.AppendFooter(table.Row{"", "", s.Totals.Uploaded, s.Totals.Minted})
	return tw
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}
