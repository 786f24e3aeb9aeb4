package wellbeing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process implementation of the entry, delivery and consent
// stores, used by tests and local runs.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string][]JournalEntry
	deliveries map[string][]Delivery
	consents   map[string]Consent

	// Err, when set, is returned from every read to simulate an outage.
	Err error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string][]JournalEntry),
		deliveries: make(map[string][]Delivery),
		consents:   make(map[string]Consent),
	}
}

// AddEntry records a journal entry.
func (m *MemoryStore) AddEntry(e JournalEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.UserID] = append(m.entries[e.UserID], e)
}

// AddDelivery records an intervention delivery.
func (m *MemoryStore) AddDelivery(d Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[d.UserID] = append(m.deliveries[d.UserID], d)
}

// SetConsent stores a consent record for the user.
func (m *MemoryStore) SetConsent(userID string, c Consent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consents[userID] = c
}

func (m *MemoryStore) FetchEntries(_ context.Context, userID string, since, until time.Time) ([]JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []JournalEntry
	for _, e := range m.entries[userID] {
		if e.Timestamp.Before(since) || e.Timestamp.After(until) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) FetchDeliveries(_ context.Context, userID string, since time.Time) ([]Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []Delivery
	for _, d := range m.deliveries[userID] {
		if d.DeliveredAt.Before(since) {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DeliveredAt.After(out[j].DeliveredAt) })
	return out, nil
}

func (m *MemoryStore) HighRiskUsers(_ context.Context, since time.Time, minLevel int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var users []string
	for userID, ds := range m.deliveries {
		var latest *Delivery
		for i := range ds {
			d := &ds[i]
			if d.DeliveredAt.Before(since) {
				continue
			}
			if latest == nil || d.DeliveredAt.After(latest.DeliveredAt) {
				latest = d
			}
		}
		if latest != nil && latest.CrisisEscalationLevel >= minLevel {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (m *MemoryStore) GetConsent(_ context.Context, userID string) (*Consent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	c, ok := m.consents[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}
