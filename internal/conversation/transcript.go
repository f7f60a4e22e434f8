package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is a single role-tagged message in the transcript.
type Entry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is the process-wide conversation log. It grows for the life of
// the process; there is no eviction and nothing is persisted.
type Transcript struct {
	mu      sync.RWMutex
	entries []Entry
	onGrow  func(n int)
}

// NewTranscript returns a transcript seeded with a system entry when
// systemPrompt is non-empty.
func NewTranscript(systemPrompt string) *Transcript {
	t := &Transcript{}
	if systemPrompt != "" {
		t.entries = append(t.entries, newEntry(RoleSystem, systemPrompt))
	}
	return t
}

// SetGrowHook registers a callback invoked with the new length after appends.
func (t *Transcript) SetGrowHook(hook func(n int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onGrow = hook
}

// Append adds entries in order and returns the stored copies.
func (t *Transcript) Append(entries ...Entry) []Entry {
	if len(entries) == 0 {
		return nil
	}
	stored := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		stored = append(stored, e)
	}

	t.mu.Lock()
	t.entries = append(t.entries, stored...)
	n := len(t.entries)
	hook := t.onGrow
	t.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return stored
}

// AppendMessage is shorthand for appending one entry built from role and content.
func (t *Transcript) AppendMessage(role Role, content string) Entry {
	return t.Append(newEntry(role, content))[0]
}

// Snapshot returns a copy of all entries in order.
func (t *Transcript) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func newEntry(role Role, content string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
