package audit_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"tendermarket/db"
	"tendermarket/internal/audit"

	"github.com/stretchr/testify/require"
)

type mockStore struct {
	entries   []db.AuditLogEntry
	appendErr error
}

func (m *mockStore) AppendAuditEntry(ctx context.Context, e *db.AuditLogEntry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, *e)
	return nil
}

func TestRecordAppendsEntry(t *testing.T) {
	store := &mockStore{}
	rec := audit.NewRecorder(store, zap.NewNop())

	target := "42"
	rec.Record(context.Background(), "user-1", audit.ActionBidPlaced, &target, map[string]any{"tenderId": 42})

	require.Len(t, store.entries, 1)
	require.Equal(t, audit.ActionBidPlaced, store.entries[0].Action)
	require.Equal(t, "user-1", store.entries[0].UserID)
	require.JSONEq(t, `{"tenderId":42}`, string(store.entries[0].Details))
}

func TestRecordSwallowsWriteFailure(t *testing.T) {
	store := &mockStore{appendErr: errors.New("disk full")}
	rec := audit.NewRecorder(store, zap.NewNop())

	// Не паникует и не возвращает ошибку вызывающему.
	rec.Record(context.Background(), "user-1", audit.ActionLoginFailed, nil, nil)

	// Но сбой виден в канале ошибок.
	select {
	case err := <-rec.Errs():
		require.ErrorContains(t, err, "disk full")
	default:
		t.Fatal("expected audit failure on the error channel")
	}
}
