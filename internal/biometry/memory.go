package biometry

import (
	"context"
	"sync"
)

// PromptFunc decides the outcome of a simulated biometric prompt.
type PromptFunc func(ctx context.Context, reason string) error

// Memory is a software Platform. It backs the "simulated" biometry mode and
// the tests; it offers no protection beyond process memory.
type Memory struct {
	mu        sync.Mutex
	supported bool
	items     map[string][]byte
	prompt    PromptFunc
	prompts   int
	saveErr   error
}

// NewMemory returns a Memory platform whose prompts succeed.
func NewMemory(supported bool) *Memory {
	return &Memory{supported: supported, items: make(map[string][]byte)}
}

// SetPrompt replaces the prompt outcome; nil approves every prompt.
func (m *Memory) SetPrompt(fn PromptFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompt = fn
}

// FailSaves makes subsequent Save/Replace calls fail with err.
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Prompts reports how many prompts were shown.
func (m *Memory) Prompts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts
}

// Len reports how many items are sealed.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory) IsSupported(context.Context) bool {
	return m.supported
}

func (m *Memory) Save(_ context.Context, account string, secret []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.supported {
		return ErrUnsupported
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.items[account]; ok {
		return ErrDuplicate
	}
	m.items[account] = append([]byte(nil), secret...)
	return nil
}

func (m *Memory) Replace(_ context.Context, account string, secret []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.supported {
		return ErrUnsupported
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	if old, ok := m.items[account]; ok {
		wipe(old)
	}
	m.items[account] = append([]byte(nil), secret...)
	return nil
}

func (m *Memory) Retrieve(ctx context.Context, account, reason string) ([]byte, error) {
	m.mu.Lock()
	if !m.supported {
		m.mu.Unlock()
		return nil, ErrUnsupported
	}
	m.prompts++
	prompt := m.prompt
	m.mu.Unlock()

	if reason == "" {
		reason = DefaultReason
	}
	if prompt != nil {
		if err := prompt(ctx, reason); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[account]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), item...), nil
}

func (m *Memory) Delete(_ context.Context, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.items[account]; ok {
		wipe(old)
		delete(m.items, account)
	}
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
