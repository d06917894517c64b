// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ctxsync provides synchronization primitives whose waits
// may be abandoned through a context. Collectives use them so that a
// rank blocked on absent peers can still be torn down by its caller.
package ctxsync

import (
	"context"
	"sync"
)

// A Cond is a condition variable with a context-aware Wait.
type Cond struct {
	l     sync.Locker
	waitc chan struct{}
}

// NewCond returns a new Cond that uses l as its lock.
func NewCond(l sync.Locker) *Cond {
	return &Cond{l: l}
}

// Broadcast wakes every current waiter. The cond's lock must be held.
func (c *Cond) Broadcast() {
	if c.waitc == nil {
		return
	}
	close(c.waitc)
	c.waitc = nil
}

// Wait releases the lock and blocks until the next Broadcast or until
// ctx is done, reacquiring the lock before it returns. The context's
// error is returned if it completed first.
func (c *Cond) Wait(ctx context.Context) error {
	if c.waitc == nil {
		c.waitc = make(chan struct{})
	}
	waitc := c.waitc
	c.l.Unlock()
	defer c.l.Lock()
	select {
	case <-waitc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitUntil waits until ready returns true. Ready is evaluated with
// the lock held, after every Broadcast.
func (c *Cond) WaitUntil(ctx context.Context, ready func() bool) error {
	for !ready() {
		if err := c.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
