package execlog

import (
	"encoding/json"
	"fmt"
	"io"
)

// header is the first record of every persisted trace stream.
type header struct {
	Version string `json:"version"`
	RunID   string `json:"run_id"`
}

func writeHeader(w io.Writer, runID string) error {
	b, err := json.Marshal(header{Version: Format, RunID: runID})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

func writeEntry(w io.Writer, e *Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

// WriteTo persists the full trace as a JSONL stream: one header record
// followed by every entry in begin order. It is safe to call after Flush.
func (l *Log) WriteTo(w io.Writer) error {
	if l == nil {
		return nil
	}
	if err := writeHeader(w, l.runID); err != nil {
		return err
	}
	for _, e := range l.Entries() {
		if err := writeEntry(w, &e); err != nil {
			return err
		}
	}
	return nil
}
