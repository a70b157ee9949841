//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"sync"
)

// ThreadLocker serializes the superstep-plus-append sequence per thread.
// The executor assumes single-writer discipline per thread ID; production
// deployments sharing a thread across processes must supply a distributed
// lock here, or route each thread to a single owner. Without it,
// concurrent invocations on one thread race read-modify-append and the
// last append silently wins.
type ThreadLocker interface {
	// AcquireThread blocks until the thread lock is held and returns the
	// release function.
	AcquireThread(ctx context.Context, threadID string) (release func(), err error)
}

// processLocker is the in-process default: one mutex per thread ID.
type processLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProcessThreadLocker creates a per-thread mutex locker scoped to this
// process.
func NewProcessThreadLocker() ThreadLocker {
	return &processLocker{locks: make(map[string]*sync.Mutex)}
}

// AcquireThread implements ThreadLocker.
func (l *processLocker) AcquireThread(ctx context.Context, threadID string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[threadID] = lock
	}
	l.mu.Unlock()
	lock.Lock()
	return lock.Unlock, nil
}

// noopLocker performs no locking. Callers opting in accept the documented
// last-write-wins hazard under concurrent same-thread invocation.
type noopLocker struct{}

// NewNoopThreadLocker creates a locker that never blocks.
func NewNoopThreadLocker() ThreadLocker {
	return noopLocker{}
}

// AcquireThread implements ThreadLocker.
func (noopLocker) AcquireThread(ctx context.Context, threadID string) (func(), error) {
	return func() {}, nil
}
