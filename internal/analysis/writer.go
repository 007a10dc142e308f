package analysis

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cellsentry/cellsentry/internal/config"
	"github.com/cellsentry/cellsentry/internal/diag"
	"github.com/cellsentry/cellsentry/internal/harness"
)

// Writer turns harness result rows into a durable analysis file.
//
// The file format is newline-delimited JSON: the first line is the
// harness metadata record, each following line one result row. Rows
// are written and flushed immediately, so a crash loses at most the
// rows of the container currently being analyzed and the file is
// always a syntactically valid prefix.
type Writer struct {
	out     io.WriteCloser
	w       *bufio.Writer
	harness *harness.Harness
}

// NewWriter builds a harness from the analyzer toggles and writes its
// metadata record before any rows.
func NewWriter(out io.WriteCloser, analyzers config.Analyzers) (*Writer, error) {
	h := harness.New(analyzers)
	w := &Writer{
		out:     out,
		w:       bufio.NewWriter(out),
		harness: h,
	}
	if err := w.write(h.Metadata()); err != nil {
		return nil, fmt.Errorf("writing metadata record: %w", err)
	}
	return w, nil
}

// Analyze runs the harness over one container, appending every
// non-empty row. Reports whether any row carried a warning.
func (w *Writer) Analyze(c diag.Container) (bool, error) {
	warning := false
	for _, row := range w.harness.Analyze(c) {
		if !row.IsEmpty() {
			if err := w.write(row); err != nil {
				return warning, err
			}
		}
		warning = warning || row.ContainsWarnings()
	}
	return warning, nil
}

func (w *Writer) write(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding result row: %w", err)
	}
	raw = append(raw, '\n')
	if _, err := w.w.Write(raw); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes pending output and releases the file. The writer is
// unusable afterwards.
func (w *Writer) Close() error {
	flushErr := w.w.Flush()
	closeErr := w.out.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
