package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
// Its unique keys mirror the database indexes.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	slotKey map[string]struct{}
	scanIDs map[string]struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slotKey: make(map[string]struct{}),
		scanIDs: make(map[string]struct{}),
	}
}

func slotKeyOf(studentID string, slot Slot, dateKey string) string {
	return studentID + "\x00" + string(slot) + "\x00" + dateKey
}

// FindForSlot implements Store.
func (m *MemoryStore) FindForSlot(ctx context.Context, l Lookup) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.StudentID != l.StudentID && (rec.QRStudentID == "" || rec.QRStudentID != l.StudentID) {
			continue
		}
		if rec.AppointmentSlot != l.Slot {
			continue
		}
		if rec.Date.Before(l.Start) || rec.Date.After(l.End) {
			continue
		}
		found := rec
		return &found, nil
	}
	return nil, nil
}

// Insert implements Store.
func (m *MemoryStore) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := slotKeyOf(rec.StudentID, rec.AppointmentSlot, rec.DateKey)
	if _, ok := m.slotKey[key]; ok {
		return fmt.Errorf("slot key %s/%s/%s: %w", rec.StudentID, rec.AppointmentSlot, rec.DateKey, ErrDuplicateKey)
	}
	if _, ok := m.scanIDs[rec.ConcurrentScanID]; ok {
		return fmt.Errorf("concurrent scan id %s: %w", rec.ConcurrentScanID, ErrDuplicateKey)
	}
	m.slotKey[key] = struct{}{}
	m.scanIDs[rec.ConcurrentScanID] = struct{}{}
	m.records = append(m.records, rec)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, f Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f = f.normalized()
	m.mu.RLock()
	var out []Record
	for _, rec := range m.records {
		if f.SupervisorID != "" && rec.SupervisorID != f.SupervisorID {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if !f.Start.IsZero() && rec.Date.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && rec.Date.After(f.End) {
			continue
		}
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckInTime.After(out[j].CheckInTime) })
	if f.Offset >= len(out) {
		return []Record{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CountBySlot implements Store.
func (m *MemoryStore) CountBySlot(ctx context.Context, start, end time.Time) ([]SlotCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := map[Slot]int64{}
	for _, rec := range m.records {
		if rec.Status != StatusPresent || rec.Date.Before(start) || rec.Date.After(end) {
			continue
		}
		counts[rec.AppointmentSlot]++
	}
	return slotCounts(counts), nil
}

// EnsureIndexes is a no-op; the unique keys are maintained on Insert.
func (m *MemoryStore) EnsureIndexes(context.Context) error { return nil }

// Ping implements Store.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *MemoryStore) Close(context.Context) error { return nil }

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// slotCounts orders counts first, second, then any unknown slots by name.
func slotCounts(counts map[Slot]int64) []SlotCount {
	out := []SlotCount{
		{Slot: SlotFirst, Count: counts[SlotFirst]},
		{Slot: SlotSecond, Count: counts[SlotSecond]},
	}
	var extra []SlotCount
	for slot, n := range counts {
		if !slot.Valid() {
			extra = append(extra, SlotCount{Slot: slot, Count: n})
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Slot < extra[j].Slot })
	return append(out, extra...)
}
