// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/resetgate/resetgate/internal/flow"
)

// defaultIdleTTL is how long an untouched session survives before the
// janitor discards it.
const defaultIdleTTL = 30 * time.Minute

// janitorInterval is how often idle sessions are swept.
const janitorInterval = time.Minute

// session pairs a workflow with its HTTP identity. The per-session
// mutex serializes concurrent requests carrying the same cookie so the
// workflow keeps its single-actor guarantee.
type session struct {
	mu       sync.Mutex
	workflow *flow.Workflow
	lastSeen time.Time
}

// WorkflowFactory builds a fresh workflow for a new session.
type WorkflowFactory func() (*flow.Workflow, error)

// sessionRegistry owns the per-cookie workflows.
type sessionRegistry struct {
	newWorkflow WorkflowFactory
	idleTTL     time.Duration
	logger      *slog.Logger
	onCount     func(active int)

	mu       sync.Mutex
	sessions map[string]*session

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func newSessionRegistry(factory WorkflowFactory, idleTTL time.Duration, logger *slog.Logger, onCount func(int)) *sessionRegistry {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	if onCount == nil {
		onCount = func(int) {}
	}
	return &sessionRegistry{
		newWorkflow: factory,
		idleTTL:     idleTTL,
		logger:      logger,
		onCount:     onCount,
		sessions:    make(map[string]*session),
		done:        make(chan struct{}),
	}
}

// acquire returns the session for id, creating one when id is empty or
// unknown. The returned id replaces the caller's cookie value.
func (r *sessionRegistry) acquire(id string) (string, *session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if existing, ok := r.sessions[id]; ok {
			existing.lastSeen = time.Now()
			return id, existing, nil
		}
	}

	workflow, err := r.newWorkflow()
	if err != nil {
		return "", nil, err
	}

	id = ulid.Make().String()
	created := &session{
		workflow: workflow,
		lastSeen: time.Now(),
	}
	r.sessions[id] = created
	r.onCount(len(r.sessions))
	r.logger.Debug("session created", "session_id", id)
	return id, created, nil
}

// startJanitor launches the idle-session sweeper.
func (r *sessionRegistry) startJanitor() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
				r.sweep(time.Now())
			}
		}
	}()
}

// stop terminates the janitor and waits for it. Idempotent.
func (r *sessionRegistry) stop() {
	r.once.Do(func() { close(r.done) })
	r.wg.Wait()
}

// sweep discards sessions idle past the TTL, clearing their workflow
// state first.
func (r *sessionRegistry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, sess := range r.sessions {
		if now.Sub(sess.lastSeen) <= r.idleTTL {
			continue
		}
		// A session whose mutex is held is mid-request, not idle.
		if !sess.mu.TryLock() {
			continue
		}
		sess.workflow.Clear()
		sess.mu.Unlock()
		delete(r.sessions, id)
		removed++
	}
	if removed > 0 {
		r.onCount(len(r.sessions))
		r.logger.Debug("swept idle sessions", "removed", removed)
	}
}
