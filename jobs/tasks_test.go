package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vesper-social/vesper/internal/audit"
)

type captureInserter struct {
	entries []audit.Entry
}

func (c *captureInserter) Insert(_ context.Context, entry audit.Entry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func TestMuxRoutesRecordTask(t *testing.T) {
	repo := &captureInserter{}
	mux := NewMux(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	task, err := audit.NewRecordTask(audit.Entry{ID: "e1", UserID: "u1", Result: audit.ResultDenied})
	require.NoError(t, err)

	require.NoError(t, mux.ProcessTask(context.Background(), task))
	require.Len(t, repo.entries, 1)
	require.Equal(t, "e1", repo.entries[0].ID)
	require.Equal(t, audit.ResultDenied, repo.entries[0].Result)
}
