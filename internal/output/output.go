package output

import (
	"fmt"
	"io"
	"os"
)

// Writer writes a status in a specific format.
type Writer interface {
	Write(w io.Writer, s *Status) error
}

// Formats lists the supported format names.
var Formats = []string{"text", "json", "markdown"}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "", "text":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteStatus writes s to outPath, or to stdout when outPath is empty.
func WriteStatus(s *Status, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	var w io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	} else {
		w = os.Stdout
	}

	return writer.Write(w, s)
}
