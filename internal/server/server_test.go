package server_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cellsentry/cellsentry/internal/analysis"
	"github.com/cellsentry/cellsentry/internal/server"
)

type fakeAnalysis struct {
	snap      analysis.Snapshot
	err       error
	queuedOne string
	queuedAll bool
}

func (f *fakeAnalysis) Snapshot() analysis.Snapshot {
	return f.snap
}

func (f *fakeAnalysis) Queue(name string) (bool, analysis.Snapshot, error) {
	f.queuedOne = name
	return f.err == nil, f.snap, f.err
}

func (f *fakeAnalysis) QueueAll() (bool, analysis.Snapshot, error) {
	f.queuedAll = true
	return f.err == nil, f.snap, f.err
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	running := "cap-2"
	snap := analysis.Snapshot{
		Queued:  []string{"cap-1"},
		Running: &running,
		Finished: []analysis.FinishedEntry{
			{Name: "cap-0", Outcome: analysis.OutcomeOK, Warning: true, Reason: analysis.ReasonAnalysis},
		},
	}

	t.Run("get_status", func(t *testing.T) {
		t.Parallel()
		fake := &fakeAnalysis{snap: snap}
		rec := httptest.NewRecorder()
		server.New(fake, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analysis", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var got analysis.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Equal(t, snap, got)
	})

	t.Run("start_one", func(t *testing.T) {
		t.Parallel()
		fake := &fakeAnalysis{snap: snap}
		rec := httptest.NewRecorder()
		server.New(fake, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analysis/cap-7", nil))

		require.Equal(t, http.StatusAccepted, rec.Code)
		require.Equal(t, "cap-7", fake.queuedOne)
		var got analysis.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Equal(t, snap, got)
	})

	t.Run("start_all", func(t *testing.T) {
		t.Parallel()
		fake := &fakeAnalysis{snap: snap}
		rec := httptest.NewRecorder()
		server.New(fake, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analysis", nil))

		require.Equal(t, http.StatusAccepted, rec.Code)
		require.True(t, fake.queuedAll)
	})

	t.Run("signal_failure_is_internal_error", func(t *testing.T) {
		t.Parallel()
		fake := &fakeAnalysis{snap: snap, err: errors.New("mailbox full")}
		rec := httptest.NewRecorder()
		server.New(fake, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analysis", nil))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Contains(t, rec.Body.String(), "mailbox full")
	})

	t.Run("status_is_read_only", func(t *testing.T) {
		t.Parallel()
		fake := &fakeAnalysis{snap: snap}
		rec := httptest.NewRecorder()
		server.New(fake, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/analysis", nil))

		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
