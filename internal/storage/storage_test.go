package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/nodespace/internal/nodeerr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenInitializesSchema(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().Unix()
	_, err := s.Execute(context.Background(),
		`INSERT INTO nodes (id, node_type, content, version, created_at, modified_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"n1", "text", "hello", 1, now, now)
	require.NoError(t, err)

	row := s.QueryRow(context.Background(), `SELECT content FROM nodes WHERE id = ?`, "n1")
	var content string
	require.NoError(t, row.Scan(&content))
	require.Equal(t, "hello", content)
}

func TestExecuteClassifiesUniqueViolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	insert := `INSERT INTO nodes (id, node_type, content, version, created_at, modified_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.Execute(ctx, insert, "dup", "text", "a", 1, now, now)
	require.NoError(t, err)

	_, err = s.Execute(ctx, insert, "dup", "text", "b", 1, now, now)
	require.Error(t, err)
	require.Equal(t, nodeerr.KindUniqueViolation, nodeerr.AsKind(err))
}

func TestExecuteClassifiesForeignKeyViolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, `INSERT INTO has_child (parent_id, child_id, rank) VALUES (?, ?, ?)`,
		"missing-parent", "missing-child", 1.0)
	require.Error(t, err)
	require.Equal(t, nodeerr.KindForeignKeyViolation, nodeerr.AsKind(err))
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	sentinel := errors.New("boom")
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx,
			`INSERT INTO nodes (id, node_type, content, version, created_at, modified_at) VALUES (?, ?, ?, ?, ?, ?)`,
			"rolled-back", "text", "x", 1, now, now)
		require.NoError(t, execErr)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	row := s.QueryRow(ctx, `SELECT COUNT(*) FROM nodes WHERE id = ?`, "rolled-back")
	var count int
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 0, count)
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx,
			`INSERT INTO nodes (id, node_type, content, version, created_at, modified_at) VALUES (?, ?, ?, ?, ?, ?)`,
			"committed", "text", "x", 1, now, now)
		return execErr
	})
	require.NoError(t, err)

	row := s.QueryRow(ctx, `SELECT COUNT(*) FROM nodes WHERE id = ?`, "committed")
	var count int
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)
}

func TestCheckpoint(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Checkpoint(context.Background()))
}
