// Package tabs carries tab commands from the controller to the browser
// extension, which drains them by long polling.
package tabs

import (
	"context"
	"sync"
	"time"
)

// CommandKind names a tab operation.
type CommandKind string

const (
	// CommandUpdate navigates a tab to URL.
	CommandUpdate CommandKind = "update"
	// CommandRemove closes a tab.
	CommandRemove CommandKind = "remove"
)

// Command is one pending tab operation.
type Command struct {
	Kind  CommandKind `json:"kind"`
	TabID int         `json:"tabId"`
	URL   string      `json:"url,omitempty"`
}

// Queue buffers Commands in issue order until Drain collects them.
type Queue struct {
	mu      sync.Mutex
	pending []Command
	// ready is closed and replaced whenever a command is queued.
	ready chan struct{}
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{})}
}

// Update queues a navigation of tabID to url.
func (q *Queue) Update(_ context.Context, tabID int, url string) error {
	q.push(Command{Kind: CommandUpdate, TabID: tabID, URL: url})
	return nil
}

// Remove queues closing tabID.
func (q *Queue) Remove(_ context.Context, tabID int) error {
	q.push(Command{Kind: CommandRemove, TabID: tabID})
	return nil
}

func (q *Queue) push(c Command) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	close(q.ready)
	q.ready = make(chan struct{})
	q.mu.Unlock()
}

// Drain returns every pending command. When none are pending it waits up to
// maxWait for one to arrive; a maxWait <= 0 returns immediately. The result
// is empty, not nil, when nothing arrived. A cancelled ctx takes nothing, so
// commands stay queued for the next caller.
func (q *Queue) Drain(ctx context.Context, maxWait time.Duration) []Command {
	if ctx.Err() != nil {
		return []Command{}
	}
	q.mu.Lock()
	if len(q.pending) > 0 || maxWait <= 0 {
		out := q.take()
		q.mu.Unlock()
		return out
	}
	ready := q.ready
	q.mu.Unlock()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
	case <-ctx.Done():
	}
	if ctx.Err() != nil {
		return []Command{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.take()
}

// Len reports how many commands are pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// take must be called with q.mu held.
func (q *Queue) take() []Command {
	out := q.pending
	if out == nil {
		out = []Command{}
	}
	q.pending = nil
	return out
}
