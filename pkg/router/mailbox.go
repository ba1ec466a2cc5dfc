package router

import (
	"sync"

	"github.com/aretw0/crosschain/pkg/domain"
)

type mailboxKey struct {
	chainID string
	msgType string
}

// mailbox queues fire-and-forget messages until the destination drains them.
type mailbox struct {
	mu     sync.Mutex
	queues map[mailboxKey][]domain.Message
}

func newMailbox() *mailbox {
	return &mailbox{queues: make(map[mailboxKey][]domain.Message)}
}

func (m *mailbox) push(msg domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mailboxKey{chainID: msg.Destination, msgType: msg.Type}
	m.queues[k] = append(m.queues[k], msg)
}

func (m *mailbox) drain(chainID, msgType string) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mailboxKey{chainID: chainID, msgType: msgType}
	out := m.queues[k]
	delete(m.queues, k)
	return out
}

func (m *mailbox) len(chainID, msgType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[mailboxKey{chainID: chainID, msgType: msgType}])
}
