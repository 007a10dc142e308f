package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/cellsentry/cellsentry/internal/config"
	"github.com/cellsentry/cellsentry/internal/diag"
	"github.com/cellsentry/cellsentry/internal/store"
)

// Perform analyzes one capture: it acquires the capture log and a
// truncated analysis file from the store, streams decoded user-space
// containers through a fresh Writer, and reports whether any warning
// was detected.
//
// The store lock is held only while the handles are acquired; the
// decode bound is the capture size observed at that moment, so a
// capture still being appended to is never over-read. Errors abort
// the remainder of this capture only; retrying requires a new
// enqueue.
func Perform(ctx context.Context, st *store.Store, analyzers config.Analyzers, name string) (bool, error) {
	slog.InfoContext(ctx, "opening capture and analysis file", "capture", name)
	analysisFile, captureFile, size, err := st.OpenForAnalysis(name)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = captureFile.Close()
	}()

	writer, err := NewWriter(analysisFile, analyzers)
	if err != nil {
		_ = analysisFile.Close()
		return false, err
	}

	slog.InfoContext(ctx, "starting analysis", "capture", name, "size", humanize.Bytes(uint64(size)))
	reader := diag.NewReader(captureFile, size)
	warning := false
	for container, err := range reader.Containers(ctx) {
		if err != nil {
			_ = writer.Close()
			return warning, fmt.Errorf("decoding capture %s: %w", name, err)
		}
		if container.DataType != diag.DataTypeUserSpace {
			continue
		}
		warned, err := writer.Analyze(container)
		if err != nil {
			_ = writer.Close()
			return warning, fmt.Errorf("analyzing capture %s: %w", name, err)
		}
		warning = warning || warned
	}

	if err := writer.Close(); err != nil {
		return warning, fmt.Errorf("closing analysis file for %s: %w", name, err)
	}
	slog.InfoContext(ctx, "analysis complete", "capture", name, "warning", warning)
	return warning, nil
}
