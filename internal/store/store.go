package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Keys under which client state is persisted.
const (
	KeyDeviceHost  = "espIp"
	KeyTheme       = "theme"
	KeyPreferences = "awtrixPreferences"
)

// Preferences is the persisted user preferences blob.
type Preferences struct {
	Theme      string `json:"theme"`
	LastPage   string `json:"lastPage"`
	Animations bool   `json:"animations"`
}

func DefaultPreferences() Preferences {
	return Preferences{Theme: "auto", LastPage: "dashboard", Animations: true}
}

// Store is durable client state plus the processed-id marks used by the
// relay to drop replayed bridge requests.
type Store interface {
	DeviceHost(ctx context.Context) (string, error)
	SetDeviceHost(ctx context.Context, host string) error
	Theme(ctx context.Context) (string, error)
	SetTheme(ctx context.Context, theme string) error
	Preferences(ctx context.Context) (Preferences, error)
	SetPreferences(ctx context.Context, prefs Preferences) error
	IsProcessed(ctx context.Context, msgID string) (bool, error)
	MarkProcessed(ctx context.Context, msgID string, ttl time.Duration) error
	// MarkProcessedIfNew marks msgID and reports true, or reports false if
	// an unexpired mark already exists. The check and the mark are atomic.
	MarkProcessedIfNew(ctx context.Context, msgID string, ttl time.Duration) (bool, error)
	Close() error
}

type MemoryStore struct {
	mu        sync.RWMutex
	values    map[string]string
	processed map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:    make(map[string]string),
		processed: make(map[string]time.Time),
	}
}

func (m *MemoryStore) get(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key]
}

func (m *MemoryStore) set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *MemoryStore) DeviceHost(_ context.Context) (string, error) {
	return m.get(KeyDeviceHost), nil
}

func (m *MemoryStore) SetDeviceHost(_ context.Context, host string) error {
	m.set(KeyDeviceHost, host)
	return nil
}

func (m *MemoryStore) Theme(_ context.Context) (string, error) {
	return m.get(KeyTheme), nil
}

func (m *MemoryStore) SetTheme(_ context.Context, theme string) error {
	m.set(KeyTheme, theme)
	return nil
}

func (m *MemoryStore) Preferences(_ context.Context) (Preferences, error) {
	return decodePreferences(m.get(KeyPreferences))
}

func (m *MemoryStore) SetPreferences(_ context.Context, prefs Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	m.set(KeyPreferences, string(raw))
	return nil
}

func (m *MemoryStore) IsProcessed(_ context.Context, msgID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expireAt, ok := m.processed[msgID]
	if !ok {
		return false, nil
	}
	return time.Now().Before(expireAt), nil
}

func (m *MemoryStore) MarkProcessed(_ context.Context, msgID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[msgID] = time.Now().Add(ttl)
	return nil
}

func (m *MemoryStore) MarkProcessedIfNew(_ context.Context, msgID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if expireAt, ok := m.processed[msgID]; ok && now.Before(expireAt) {
		return false, nil
	}
	m.processed[msgID] = now.Add(ttl)
	return true, nil
}

func (m *MemoryStore) Close() error { return nil }

// decodePreferences returns defaults for an empty or unreadable blob, the
// same way a fresh client starts.
func decodePreferences(raw string) (Preferences, error) {
	prefs := DefaultPreferences()
	if raw == "" {
		return prefs, nil
	}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return DefaultPreferences(), nil
	}
	return prefs, nil
}
