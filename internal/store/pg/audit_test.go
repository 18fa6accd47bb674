package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"inkpost.org/internal/audit"
)

func TestAuditInsertEncodesSnapshot(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`insert into audit_log`).
		WithArgs("01A", "users:create", "admin-1", "User", "u-2", []byte(`{"role":"viewer"}`), "corr-1", nil, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Audit().Insert(context.Background(), &audit.Entry{
		ID:            "01A",
		Action:        "users:create",
		ActorID:       "admin-1",
		TargetType:    "User",
		TargetID:      "u-2",
		Snapshot:      map[string]any{"role": "viewer"},
		CorrelationID: "corr-1",
		CreatedAt:     at,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestAuditListRecentAndCount(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "action", "actor_id", "target_type", "target_id", "snapshot", "correlation_id", "ip", "created_at"}).
		AddRow("02B", "posts:delete", "ed-1", "Post", "p-1", []byte(`{"title":"Old"}`), "corr-2", "10.0.0.1", at.Add(time.Minute)).
		AddRow("01A", "posts:create", "ed-1", "Post", "p-1", nil, "", "", at)
	mock.ExpectQuery(`from audit_log`).WithArgs(2).WillReturnRows(rows)
	mock.ExpectQuery(`select count\(\*\) from audit_log`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	entries, err := s.Audit().ListRecent(context.Background(), 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "02B" || entries[0].Snapshot["title"] != "Old" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[1].Snapshot != nil {
		t.Fatalf("expected empty snapshot for null column")
	}
	n, err := s.Audit().Count(context.Background())
	if err != nil || n != 7 {
		t.Fatalf("count: %d %v", n, err)
	}
}
