// threadpool.go - the guest thread pool backing SysClone (spec §4.4
// clone, §5 "Each guest thread is driven by one host thread").
//
// Wired to golang.org/x/sync's errgroup (so a HaltMachine fault on any
// guest thread surfaces to whatever is driving the System) and
// semaphore (bounding concurrently live guest threads as the §7 kind 4
// resource-exhaustion guard), per SPEC_FULL.md's DOMAIN STACK.

package blink16

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// maxGuestThreads bounds concurrently live Machines; exceeding it
// surfaces as EAGAIN from SysClone per spec §7 kind 4.
const maxGuestThreads = 4096

type threadPool struct {
	sys   *System
	group *errgroup.Group
	ctx   context.Context
	sem   *semaphore.Weighted
}

func newThreadPool(sys *System) *threadPool {
	g, ctx := errgroup.WithContext(context.Background())
	return &threadPool{
		sys:   sys,
		group: g,
		ctx:   ctx,
		sem:   semaphore.NewWeighted(maxGuestThreads),
	}
}

// Wait blocks until every spawned guest thread has exited, returning
// the first fatal fault any of them raised (nil on a clean exit_group).
func (tp *threadPool) Wait() error {
	return tp.group.Wait()
}

// spawn starts actor as a new guest thread if the pool has capacity and
// reports false when it does not (SysClone turns that into EAGAIN, per
// §7 kind 4). actor recovers its own haltSignal per the
// §9 design note ("caught only at the Actor loop").
func (tp *threadPool) spawn(actor func() error) bool {
	if !tp.sem.TryAcquire(1) {
		return false
	}
	tp.group.Go(func() error {
		defer tp.sem.Release(1)
		return actor()
	})
	return true
}
