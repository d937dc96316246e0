// Package merge runs the background priority-lane scheduler that decides
// when a shard's segments get compacted, plus the segment-selection policy
// each merge pass applies within an index. The actual merge mechanics live
// in internal/vector (per-segment fast/slow path) and internal/catalog
// (publishing the result); this package only decides when and which.
package merge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nidx/nidx/internal/log"
)

// Priority is one of the three lanes a merge request can arrive on. Higher
// values win when the same shard already has a pending request.
type Priority int

const (
	// WhenFree is idle-time housekeeping, enumerated across every shard.
	WhenFree Priority = iota
	// Low is a post-commit trigger based on a segment-count threshold.
	Low
	// High is an explicit request whose caller waits for the result.
	High
)

// Merger performs one shard's merge pass. Implemented by internal/shard,
// which owns the catalog and segment files this touches.
type Merger interface {
	Merge(ctx context.Context, shardID string, params Params) error
}

// Lister enumerates every shard present on disk, used for WhenFree sweeps.
type Lister interface {
	ShardIDs() ([]string, error)
}

type pending struct {
	priority Priority
	waiters  []chan error
}

// Scheduler is the single background worker that drains merge requests
// across every shard. One Scheduler serves an entire node.
type Scheduler struct {
	merger      Merger
	lister      Lister
	params      Params
	idleTimeout time.Duration

	mu    sync.Mutex
	queue map[string]*pending
	wake  chan struct{}

	quit    chan struct{}
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// New builds a Scheduler. Call Start to begin processing.
func New(merger Merger, lister Lister, params Params, idleTimeout time.Duration) *Scheduler {
	return &Scheduler{
		merger:      merger,
		lister:      lister,
		params:      params,
		idleTimeout: idleTimeout,
		queue:       map[string]*pending{},
		wake:        make(chan struct{}, 1),
	}
}

// Start launches the background worker loop.
func (s *Scheduler) Start() {
	s.quit = make(chan struct{})
	s.wg.Add(1)
	go s.loop()
}

// Stop cooperatively halts the worker and waits for it to exit.
func (s *Scheduler) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.quit)
	s.wg.Wait()
}

// Trigger enqueues a Low-priority merge check for shardID, the post-commit
// path: it does not block and carries no result.
func (s *Scheduler) Trigger(shardID string) {
	s.enqueue(shardID, Low, nil)
}

// RequestSync enqueues a High-priority merge for shardID and blocks for its
// result, or until ctx is done.
func (s *Scheduler) RequestSync(ctx context.Context, shardID string) error {
	done := make(chan error, 1)
	s.enqueue(shardID, High, done)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) enqueue(shardID string, priority Priority, notify chan error) {
	s.mu.Lock()
	req, ok := s.queue[shardID]
	if !ok {
		req = &pending{priority: priority}
		s.queue[shardID] = req
	}
	if priority > req.priority {
		req.priority = priority
	}
	if notify != nil {
		req.waiters = append(req.waiters, notify)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) popHighest() (string, *pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bestID string
	var best *pending
	for id, req := range s.queue {
		if best == nil || req.priority > best.priority {
			bestID, best = id, req
		}
	}
	if best == nil {
		return "", nil, false
	}
	delete(s.queue, bestID)
	return bestID, best, true
}

func (s *Scheduler) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	timer := time.NewTimer(s.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
			if !timer.Stop() {
				<-timer.C
			}
			s.processOne()
			if s.queueLen() > 0 {
				select {
				case s.wake <- struct{}{}:
				default:
				}
			}
			timer.Reset(s.idleTimeout)
		case <-timer.C:
			s.scheduleWhenFree()
			timer.Reset(s.idleTimeout)
		}
	}
}

func (s *Scheduler) processOne() {
	shardID, req, ok := s.popHighest()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mergeTimeout)
	defer cancel()
	err := s.merger.Merge(ctx, shardID, s.params)
	if err != nil {
		log.L().Error("merge failed", zap.String("shard", shardID), zap.Error(err))
	}
	for _, w := range req.waiters {
		w <- err
	}
}

func (s *Scheduler) scheduleWhenFree() {
	ids, err := s.lister.ShardIDs()
	if err != nil {
		log.L().Error("list shards for idle merge sweep", zap.Error(err))
		return
	}
	for _, id := range ids {
		s.enqueue(id, WhenFree, nil)
	}
}

const mergeTimeout = 5 * time.Minute
