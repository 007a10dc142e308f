package diag_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cellsentry/cellsentry/internal/diag"
)

func collect(t *testing.T, r *diag.Reader) ([]diag.Container, error) {
	t.Helper()
	var out []diag.Container
	for c, err := range r.Containers(t.Context()) {
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

func TestReader(t *testing.T) {
	t.Parallel()

	var log []byte
	log = diag.AppendFrame(log, diag.DataTypeUserSpace, []byte{diag.KindIdentityRequest, diag.IdentityTypeIMSI})
	log = diag.AppendFrame(log, diag.DataTypeControl, []byte{0xff})
	log = diag.AppendFrame(log, diag.DataTypeUserSpace, nil)

	t.Run("decodes_all_frames", func(t *testing.T) {
		t.Parallel()
		r := diag.NewReader(bytes.NewReader(log), int64(len(log)))
		containers, err := collect(t, r)
		require.NoError(t, err)
		require.Len(t, containers, 3)
		require.Equal(t, diag.DataTypeUserSpace, containers[0].DataType)
		require.Equal(t, diag.KindIdentityRequest, containers[0].Kind())
		require.Equal(t, diag.DataTypeControl, containers[1].DataType)
		require.Empty(t, containers[2].Payload)
	})

	t.Run("bound_stops_before_growing_tail", func(t *testing.T) {
		t.Parallel()
		// The recorder appended another frame after the size was
		// observed; the reader must not see it.
		grown := diag.AppendFrame(append([]byte(nil), log...), diag.DataTypeUserSpace, []byte{diag.KindCellInfo})
		r := diag.NewReader(bytes.NewReader(grown), int64(len(log)))
		containers, err := collect(t, r)
		require.NoError(t, err)
		require.Len(t, containers, 3)
	})

	t.Run("truncated_frame_is_an_error", func(t *testing.T) {
		t.Parallel()
		r := diag.NewReader(bytes.NewReader(log), int64(len(log)-1))
		containers, err := collect(t, r)
		require.ErrorIs(t, err, diag.ErrTruncatedFrame)
		require.Len(t, containers, 2)
	})

	t.Run("truncated_header_is_an_error", func(t *testing.T) {
		t.Parallel()
		r := diag.NewReader(bytes.NewReader(log[:3]), 3)
		containers, err := collect(t, r)
		require.ErrorIs(t, err, diag.ErrTruncatedFrame)
		require.Empty(t, containers)
	})

	t.Run("cancelled_context_stops_the_stream", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		r := diag.NewReader(bytes.NewReader(log), int64(len(log)))
		count := 0
		for range r.Containers(ctx) {
			count++
		}
		require.Zero(t, count)
	})

	t.Run("short_read_on_empty_input", func(t *testing.T) {
		t.Parallel()
		r := diag.NewReader(bytes.NewReader(nil), 0)
		containers, err := collect(t, r)
		require.NoError(t, err)
		require.Empty(t, containers)
	})
}
