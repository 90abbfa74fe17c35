package storage

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/d-o-hub/episodic-memory-engine/internal/memerr"
	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// pooledConn is one admitted durable-store handle, identified by a stable
// ConnID. The idle-timeout evictor and Close retire a connection by closing
// its durable store; the pool keeps no separate prepared-statement cache.
type pooledConn struct {
	id       string
	store    DurableStore
	lastUsed time.Time
}

// ConnPool admission-controls access to a (small) set of durable-store
// handles with a weighted semaphore, following the same bounded-concurrency
// primitive the pack's AI-agent services use for parallel work (kubernaut,
// codenerd both depend on golang.org/x/sync).
type ConnPool struct {
	sem *semaphore.Weighted

	mu          sync.Mutex
	conns       map[string]*pooledConn
	idleTimeout time.Duration
	newConn     func() (DurableStore, error)
}

// NewConnPool constructs a pool admitting at most maxConns concurrent
// acquisitions of durable-store handles produced by newConn.
func NewConnPool(maxConns int, idleTimeout time.Duration, newConn func() (DurableStore, error)) *ConnPool {
	if maxConns <= 0 {
		maxConns = 1
	}
	return &ConnPool{
		sem:         semaphore.NewWeighted(int64(maxConns)),
		conns:       make(map[string]*pooledConn),
		idleTimeout: idleTimeout,
		newConn:     newConn,
	}
}

// Acquire blocks (respecting ctx) until admission is granted, then returns a
// durable-store handle and a release function the caller must call exactly
// once. Acquire runs the idle-timeout evictor before picking a handle; the
// release function only refreshes the handle's last-used time and frees the
// admission slot.
func (p *ConnPool) Acquire(ctx context.Context, acquireTimeout time.Duration) (DurableStore, func(), error) {
	acquireCtx := ctx
	var cancel context.CancelFunc
	if acquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, acquireTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		return nil, nil, memerr.StorageErrorf(err, "acquire connection pool slot")
	}

	p.mu.Lock()
	p.evictIdleLocked()
	conn, err := p.leastRecentlyUsedLocked()
	if err != nil {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, nil, err
	}
	conn.lastUsed = time.Now()
	connID := conn.id
	p.mu.Unlock()

	release := func() {
		p.mu.Lock()
		if c, ok := p.conns[connID]; ok {
			c.lastUsed = time.Now()
		}
		p.mu.Unlock()
		p.sem.Release(1)
	}
	return conn.store, release, nil
}

// leastRecentlyUsedLocked returns the least recently used existing
// connection, whether or not another caller holds it, and constructs a
// fresh one only when the pool holds none; concurrent acquisitions share
// that connection up to the semaphore's cap.
func (p *ConnPool) leastRecentlyUsedLocked() (*pooledConn, error) {
	var oldest *pooledConn
	for _, c := range p.conns {
		if oldest == nil || c.lastUsed.Before(oldest.lastUsed) {
			oldest = c
		}
	}
	if oldest != nil {
		return oldest, nil
	}
	store, err := p.newConn()
	if err != nil {
		return nil, memerr.StorageErrorf(err, "construct pooled connection")
	}
	conn := &pooledConn{id: types.NewID(), store: store, lastUsed: time.Now()}
	p.conns[conn.id] = conn
	return conn, nil
}

// evictIdleLocked retires connections idle past idleTimeout, closing their
// underlying durable store. This is the cleanup callback invalidating any
// per-connection prepared-statement cache that spec.md §9 requires.
func (p *ConnPool) evictIdleLocked() {
	if p.idleTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-p.idleTimeout)
	for id, c := range p.conns {
		if c.lastUsed.Before(cutoff) {
			_ = c.store.Close()
			delete(p.conns, id)
		}
	}
}

// Close retires every pooled connection.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for id, c := range p.conns {
		if err := c.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.conns, id)
	}
	return firstErr
}
