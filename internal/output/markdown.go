package output

import (
	"fmt"
	"io"
)

// MarkdownWriter outputs the status as a markdown table.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, s *Status) error {
	ew := &errWriter{w: w}
	ew.printf("## Drop status\n\n")
	ew.printf("| Items | Uploaded | Minted |\n")
	ew.printf("|-------|----------|--------|\n")
	ew.printf("| %d | %d | %d |\n\n", s.Totals.Items, s.Totals.Uploaded, s.Totals.Minted)
	if ew.err != nil {
		return ew.err
	}
	if len(s.rows()) == 0 {
		ew.println("Cache is empty.")
		return ew.err
	}
	_, err := fmt.Fprintln(w, newTable(s).RenderMarkdown())
	return err
}
