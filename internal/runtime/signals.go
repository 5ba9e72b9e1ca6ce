package runtime

import "sync"

// Mailbox holds signals sent to runs driven by this process.
// Each run has a queue and a channel that is closed on the next Send.
type Mailbox struct {
	mu    sync.Mutex
	boxes map[string]*box
}

type box struct {
	pending []string
	changed chan struct{}
}

// NewMailbox creates an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{boxes: make(map[string]*box)}
}

func (m *Mailbox) get(runID string) *box {
	b, ok := m.boxes[runID]
	if !ok {
		b = &box{changed: make(chan struct{})}
		m.boxes[runID] = b
	}
	return b
}

// Send queues a signal for a run and wakes its waiters.
func (m *Mailbox) Send(runID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.get(runID)
	b.pending = append(b.pending, name)
	close(b.changed)
	b.changed = make(chan struct{})
}

// Take consumes one queued occurrence of name.
func (m *Mailbox) Take(runID, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boxes[runID]
	if !ok {
		return false
	}
	for i, s := range b.pending {
		if s == name {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Changed returns a channel closed by the next Send to runID.
func (m *Mailbox) Changed(runID string) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(runID).changed
}

// Pending returns the queued signals of a run.
func (m *Mailbox) Pending(runID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.boxes[runID]; ok {
		return append([]string(nil), b.pending...)
	}
	return nil
}

// Drop forgets a run. Unconsumed signals are discarded.
func (m *Mailbox) Drop(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.boxes, runID)
}
