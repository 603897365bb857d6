package credvault

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/credvault/credvault/store"
)

// sessionPruner runs prune passes off the issuance path. Triggers go
// through a bounded channel; a full channel drops the trigger, which is
// safe because the next issuance for the same owner queues another.
type sessionPruner struct {
	store       *store.Store
	maxSessions int
	ch          chan string
	done        chan struct{}
	wg          sync.WaitGroup
	pending     sync.WaitGroup
	dropped     atomic.Uint64
	closed      atomic.Bool
	closeOnce   sync.Once
	log         zerolog.Logger
}

func newSessionPruner(st *store.Store, maxSessions, bufferSize int, log zerolog.Logger) *sessionPruner {
	if bufferSize <= 0 {
		bufferSize = 1
	}

	p := &sessionPruner{
		store:       st,
		maxSessions: maxSessions,
		ch:          make(chan string, bufferSize),
		done:        make(chan struct{}),
		log:         log,
	}

	p.wg.Add(1)
	go p.run()

	return p
}

func (p *sessionPruner) run() {
	defer p.wg.Done()

	for {
		select {
		case owner := <-p.ch:
			p.prune(owner)
		case <-p.done:
			for {
				select {
				case owner := <-p.ch:
					p.prune(owner)
				default:
					return
				}
			}
		}
	}
}

func (p *sessionPruner) prune(owner string) {
	defer p.pending.Done()

	if _, err := p.store.PruneSessions(context.Background(), owner, p.maxSessions); err != nil {
		p.log.Warn().Err(err).Str("owner", owner).Msg("session prune pass failed")
	}
}

// Enqueue queues one prune pass for an owner. Never blocks.
func (p *sessionPruner) Enqueue(owner string) {
	if p == nil || p.closed.Load() {
		return
	}

	p.pending.Add(1)
	select {
	case p.ch <- owner:
	case <-p.done:
		p.pending.Done()
	default:
		p.dropped.Add(1)
		p.pending.Done()
	}
}

// Wait blocks until every queued prune pass has finished.
func (p *sessionPruner) Wait() {
	if p == nil {
		return
	}
	p.pending.Wait()
}

// Close stops the pruner after draining queued triggers. Idempotent.
func (p *sessionPruner) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
		p.wg.Wait()
	})
}

// Dropped reports how many prune triggers were discarded on a full queue.
func (p *sessionPruner) Dropped() uint64 {
	if p == nil {
		return 0
	}
	return p.dropped.Load()
}
