package output

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONWriter outputs the full status as JSON.
type JSONWriter struct{}

func (j *JSONWriter) Write(w io.Writer, s *Status) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}
