package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestLookupNamespaceFound(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, status, transport, created_at, updated_at\s+FROM namespaces WHERE id = \$1`).
		WithArgs("ns1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "transport", "created_at", "updated_at"}).
			AddRow("ns1", model.NamespaceActive, []byte("null"), now, now))

	ns, err := s.LookupNamespace(context.Background(), "ns1")
	if err != nil {
		t.Fatalf("LookupNamespace: %v", err)
	}
	if ns.ID != "ns1" || ns.Status != model.NamespaceActive {
		t.Fatalf("unexpected namespace: %+v", ns)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLookupNamespaceNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT id, status, transport, created_at, updated_at\s+FROM namespaces WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.LookupNamespace(context.Background(), "missing")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected KindNotFound, got %v (%v)", apperr.KindOf(err), err)
	}
}

func TestPersistNamespaceUpsert(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectExec(`INSERT INTO namespaces \(id, status, transport, created_at, updated_at\)`).
		WithArgs("ns1", model.NamespaceActive, []byte("null"), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.PersistNamespace(context.Background(), model.Namespace{
		ID: "ns1", Status: model.NamespaceActive, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("PersistNamespace: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListNamespaces(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, status, transport, created_at, updated_at\s+FROM namespaces ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "transport", "created_at", "updated_at"}).
			AddRow("ns1", model.NamespaceActive, []byte("null"), now, now).
			AddRow("ns2", model.NamespaceActive, []byte("null"), now, now))

	out, err := s.ListNamespaces(context.Background())
	if err != nil {
		t.Fatalf("ListNamespaces: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 namespaces, got %d", len(out))
	}
}
