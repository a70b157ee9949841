//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

func newTestSaver(t *testing.T) (*Saver, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	saver, err := NewSaver(db)
	require.NoError(t, err)
	return saver, db
}

func putChain(t *testing.T, saver *Saver, threadID string, n int) []*graph.Checkpoint {
	t.Helper()
	ctx := context.Background()
	var parent *graph.Checkpoint
	chain := make([]*graph.Checkpoint, 0, n)
	for i := 0; i < n; i++ {
		ckpt := graph.NewCheckpoint(threadID, parent,
			graph.State{"counter": i}, nil, graph.SourceLoop)
		require.NoError(t, saver.Put(ctx, ckpt))
		chain = append(chain, ckpt)
		parent = ckpt
	}
	return chain
}

func TestSaverRoundTrip(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	ckpt := graph.NewCheckpoint("thread-1", nil, graph.State{
		"user_input": "hello",
		"messages":   []graph.Message{graph.NewUserMessage("hello")},
	}, []string{"step2"}, graph.SourceInput)
	ckpt.Interrupt = &graph.InterruptState{
		NodeID: "step2",
		Key:    "approval",
		Value:  "proceed?",
		Step:   1,
	}
	require.NoError(t, saver.Put(ctx, ckpt))

	got, err := saver.Get(ctx, "thread-1", ckpt.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ckpt.ID, got.ID)
	assert.EqualValues(t, 1, got.Seq)
	assert.Equal(t, "hello", got.State["user_input"])
	assert.Equal(t, []string{"step2"}, got.NextNodes)
	require.NotNil(t, got.Interrupt)
	assert.Equal(t, "approval", got.Interrupt.Key)
	assert.Equal(t, "proceed?", got.Interrupt.Value)
}

func TestSaverLatestAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	first, err := Open("sqlite3", path)
	require.NoError(t, err)
	ctx := context.Background()
	ckpt := graph.NewCheckpoint("thread-1", nil, graph.State{"k": "v"}, []string{"next"}, graph.SourceInput)
	require.NoError(t, first.Put(ctx, ckpt))
	require.NoError(t, first.Close())

	// A fresh saver against the same file sees the thread as paused.
	second, err := Open("sqlite3", path)
	require.NoError(t, err)
	defer second.Close()

	latest, err := second.Latest(ctx, "thread-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ckpt.ID, latest.ID)
	assert.True(t, latest.IsPaused())
}

func TestSaverRejectsSeqGap(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	chain := putChain(t, saver, "thread-1", 2)

	gap := graph.NewCheckpoint("thread-1", chain[1], graph.State{}, nil, graph.SourceLoop)
	gap.Seq = 9
	err := saver.Put(ctx, gap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "breaks the chain")
}

func TestSaverList(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	chain := putChain(t, saver, "thread-1", 4)

	all, err := saver.List(ctx, "thread-1", nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, chain[3].ID, all[0].ID)
	assert.Equal(t, chain[0].ID, all[3].ID)

	page, err := saver.List(ctx, "thread-1", &graph.CheckpointFilter{Limit: 2, BeforeSeq: 4})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 3, page[0].Seq)
	assert.EqualValues(t, 2, page[1].Seq)
}

func TestSaverDeleteThread(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	putChain(t, saver, "thread-1", 2)
	putChain(t, saver, "thread-2", 1)

	require.NoError(t, saver.DeleteThread(ctx, "thread-1"))

	latest, err := saver.Latest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	latest, err = saver.Latest(ctx, "thread-2")
	require.NoError(t, err)
	require.NotNil(t, latest)
}

func TestSaverCorruptPayload(t *testing.T) {
	saver, db := newTestSaver(t)
	ctx := context.Background()

	putChain(t, saver, "thread-1", 1)
	_, err := db.Exec(`UPDATE graph_checkpoints SET payload = ? WHERE thread_id = ?`,
		[]byte("{not json"), "thread-1")
	require.NoError(t, err)

	_, err = saver.Latest(ctx, "thread-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrCheckpointCorruption))
}

func TestSaverMissing(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	got, err := saver.Get(ctx, "thread-x", "ckpt-x")
	require.NoError(t, err)
	assert.Nil(t, got)

	latest, err := saver.Latest(ctx, "thread-x")
	require.NoError(t, err)
	assert.Nil(t, latest)
}
