package attendance

import (
	"context"
	"time"
)

// Store persists attendance records. Implementations must reject an Insert that would create a
// second record for the same (StudentID, AppointmentSlot, DateKey), or reuse a ConcurrentScanID,
// by returning an error wrapping ErrDuplicateKey.
type Store interface {
	// FindForSlot returns the first record whose StudentID or QRStudentID equals l.StudentID,
	// whose Date lies in [l.Start, l.End] and whose slot is l.Slot. It returns nil, nil when none exists.
	FindForSlot(ctx context.Context, l Lookup) (*Record, error)
	Insert(ctx context.Context, rec Record) error
	List(ctx context.Context, f Filter) ([]Record, error)
	CountBySlot(ctx context.Context, start, end time.Time) ([]SlotCount, error)
	EnsureIndexes(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
