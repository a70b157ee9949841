//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides a SQLite-backed checkpoint saver. Checkpoints
// are stored as JSON blobs keyed by thread and sequence number, so a new
// process pointed at the same database file resumes threads exactly where
// they left off.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS graph_checkpoints (
	thread_id     TEXT    NOT NULL,
	seq           INTEGER NOT NULL,
	checkpoint_id TEXT    NOT NULL,
	parent_id     TEXT    NOT NULL DEFAULT '',
	created_at    TEXT    NOT NULL,
	payload       BLOB    NOT NULL,
	PRIMARY KEY (thread_id, seq)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_graph_checkpoints_ckpt_id
	ON graph_checkpoints (thread_id, checkpoint_id);
`

// Saver persists checkpoint chains in a SQLite database. It works with any
// database/sql driver that speaks SQLite.
type Saver struct {
	db *sql.DB
	// ownsDB is true when the saver opened the connection itself.
	ownsDB bool
}

var _ graph.CheckpointSaver = (*Saver)(nil)

// NewSaver creates a saver on an existing database handle. The caller
// keeps ownership of db; Close does not close it.
func NewSaver(db *sql.DB) (*Saver, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	s := &Saver{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open opens a SQLite database with the given driver name and DSN and
// creates a saver owning the connection.
func Open(driverName, dsn string) (*Saver, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	s := &Saver{db: db, ownsDB: true}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Saver) init() error {
	if _, err := s.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("create checkpoint schema: %w", err)
	}
	return nil
}

// Put appends a checkpoint to its thread's chain. The primary key on
// (thread_id, seq) makes the append atomic: concurrent writers racing on
// the same sequence number fail instead of forking the chain.
func (s *Saver) Put(ctx context.Context, checkpoint *graph.Checkpoint) error {
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if checkpoint.ThreadID == "" {
		return graph.ErrThreadIDRequired
	}
	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshal checkpoint %s: %w", checkpoint.ID, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxSeq int64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM graph_checkpoints WHERE thread_id = ?`,
		checkpoint.ThreadID)
	if err := row.Scan(&maxSeq); err != nil {
		return fmt.Errorf("read chain head for thread %s: %w", checkpoint.ThreadID, err)
	}
	if checkpoint.Seq != maxSeq+1 {
		return fmt.Errorf("checkpoint seq %d for thread %s breaks the chain (want %d)",
			checkpoint.Seq, checkpoint.ThreadID, maxSeq+1)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO graph_checkpoints (thread_id, seq, checkpoint_id, parent_id, created_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		checkpoint.ThreadID, checkpoint.Seq, checkpoint.ID, checkpoint.ParentID,
		checkpoint.Timestamp.Format("2006-01-02T15:04:05.999999999Z07:00"), payload)
	if err != nil {
		return fmt.Errorf("insert checkpoint seq %d for thread %s: %w",
			checkpoint.Seq, checkpoint.ThreadID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Get retrieves one checkpoint by thread and checkpoint ID. It returns
// (nil, nil) when not found.
func (s *Saver) Get(ctx context.Context, threadID, checkpointID string) (*graph.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM graph_checkpoints WHERE thread_id = ? AND checkpoint_id = ?`,
		threadID, checkpointID)
	return scanCheckpoint(row)
}

// Latest retrieves the newest checkpoint for a thread, or (nil, nil) when
// the thread has none.
func (s *Saver) Latest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM graph_checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`,
		threadID)
	return scanCheckpoint(row)
}

// List retrieves checkpoints for a thread, newest first.
func (s *Saver) List(ctx context.Context, threadID string, filter *graph.CheckpointFilter) ([]*graph.Checkpoint, error) {
	query := `SELECT payload FROM graph_checkpoints WHERE thread_id = ?`
	args := []any{threadID}
	if filter != nil && filter.BeforeSeq > 0 {
		query += ` AND seq < ?`
		args = append(args, filter.BeforeSeq)
	}
	query += ` ORDER BY seq DESC`
	if filter != nil && filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for thread %s: %w", threadID, err)
	}
	defer rows.Close()

	var result []*graph.Checkpoint
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		ckpt, err := decodeCheckpoint(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, ckpt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoint rows: %w", err)
	}
	return result, nil
}

// DeleteThread removes all checkpoints for a thread.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM graph_checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

// Close releases the database handle if the saver owns it.
func (s *Saver) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func scanCheckpoint(row *sql.Row) (*graph.Checkpoint, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan checkpoint row: %w", err)
	}
	return decodeCheckpoint(payload)
}

func decodeCheckpoint(payload []byte) (*graph.Checkpoint, error) {
	var ckpt graph.Checkpoint
	if err := json.Unmarshal(payload, &ckpt); err != nil {
		return nil, fmt.Errorf("%w: %v", graph.ErrCheckpointCorruption, err)
	}
	if ckpt.ID == "" || ckpt.ThreadID == "" {
		return nil, fmt.Errorf("%w: missing identity fields", graph.ErrCheckpointCorruption)
	}
	return &ckpt, nil
}
