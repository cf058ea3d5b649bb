package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"shuttleattendance/internal/metrics"
	"shuttleattendance/internal/queue"
)

const (
	unknownSupervisor = "Unknown Supervisor"

	defaultPublishTimeout = 2 * time.Second
)

// RecordedEvent is the queue payload published for each accepted scan.
type RecordedEvent struct {
	ID             string `json:"id"`
	StudentID      string `json:"studentId"`
	DateKey        string `json:"dateKey"`
	Slot           Slot   `json:"appointmentSlot"`
	SupervisorID   string `json:"supervisorId"`
	SupervisorName string `json:"supervisorName"`
}

// Publisher receives accepted-scan notifications.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Service is the only write path for attendance records.
type Service struct {
	store    Store
	loc      *time.Location
	now      func() time.Time
	validate *validator.Validate
	pub      Publisher
	pubWait  time.Duration
	log      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLocation sets the timezone that bounds attendance days.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the scan clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPublisher sends accepted scans to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithPublishTimeout bounds how long an accepted scan waits on the queue.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pubWait = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService creates a service backed by a store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		loc:      time.Local,
		now:      time.Now,
		validate: newValidator(),
		pubWait:  defaultPublishTimeout,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the timezone used for day boundaries.
func (s *Service) Location() *time.Location { return s.loc }

// Register validates a scan, rejects it if the student already holds the slot today,
// and otherwise inserts exactly one record.
func (s *Service) Register(ctx context.Context, in RegisterInput) (rec Record, err error) {
	started := time.Now()
	in = trimInput(in)
	slot := in.AppointmentSlot.OrDefault()
	defer func() {
		metrics.ObserveScan(outcomeOf(err), string(slot), time.Since(started))
	}()

	if err := s.validateInput(in); err != nil {
		return Record{}, err
	}
	snap, err := ParseQR(in.QRData)
	if err != nil {
		return Record{}, err
	}

	now := s.now()
	start, end := DayBounds(now, s.loc)
	lookup := Lookup{StudentID: in.StudentID, Slot: slot, Start: start, End: end}

	existing, err := s.store.FindForSlot(ctx, lookup)
	if err != nil {
		return Record{}, &PersistenceError{Op: "duplicate check", Err: err}
	}
	if existing != nil {
		return Record{}, newDuplicate(snap.Name, slot, existing)
	}

	supervisorName := in.SupervisorName
	if supervisorName == "" {
		supervisorName = unknownSupervisor
	}
	rec = Record{
		ID:               uuid.NewString(),
		StudentID:        in.StudentID,
		QRStudentID:      snap.ID,
		StudentName:      snap.Name,
		StudentEmail:     snap.Email,
		StudentPhone:     snap.Phone,
		StudentCollege:   snap.College,
		StudentGrade:     snap.Grade,
		StudentMajor:     snap.Major,
		StudentAddress:   snap.Address,
		Date:             start,
		DateKey:          DateKey(now, s.loc),
		AppointmentSlot:  slot,
		CheckInTime:      now,
		ScanTimestamp:    now,
		SupervisorID:     in.SupervisorID,
		SupervisorName:   supervisorName,
		ConcurrentScanID: uuid.NewString(),
		Status:           StatusPresent,
		StationInfo:      in.StationInfo,
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return Record{}, s.lostRace(ctx, lookup, snap.Name)
		}
		return Record{}, &PersistenceError{Op: "insert", Err: err}
	}

	s.log.Info("attendance registered",
		zap.String("id", rec.ID),
		zap.String("student_id", rec.StudentID),
		zap.String("slot", string(slot)),
		zap.String("date", rec.DateKey),
		zap.String("supervisor_id", rec.SupervisorID))
	s.publish(ctx, rec)
	return rec, nil
}

// lostRace builds the conflict for an insert rejected by the unique slot index,
// naming the supervisor whose write got there first.
func (s *Service) lostRace(ctx context.Context, lookup Lookup, studentName string) error {
	winner, err := s.store.FindForSlot(ctx, lookup)
	if err != nil {
		s.log.Warn("reading winning scan after duplicate key", zap.Error(err), zap.String("student_id", lookup.StudentID))
	}
	s.log.Info("concurrent scan rejected by unique index",
		zap.String("student_id", lookup.StudentID),
		zap.String("slot", string(lookup.Slot)))
	dup := newDuplicate(studentName, lookup.Slot, winner)
	return &raceLostError{dup}
}

// raceLostError is a DuplicateScanError surfaced by the store rather than the pre-insert check.
type raceLostError struct {
	*DuplicateScanError
}

func (e *raceLostError) Unwrap() error { return e.DuplicateScanError }

func (s *Service) publish(ctx context.Context, rec Record) {
	if s.pub == nil {
		return
	}
	body, err := json.Marshal(RecordedEvent{
		ID:             rec.ID,
		StudentID:      rec.StudentID,
		DateKey:        rec.DateKey,
		Slot:           rec.AppointmentSlot,
		SupervisorID:   rec.SupervisorID,
		SupervisorName: rec.SupervisorName,
	})
	if err != nil {
		s.log.Error("encode recorded event", zap.Error(err))
		return
	}
	// The record is committed; publish on a short deadline detached from the request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.pubWait)
	defer cancel()
	if err := s.pub.Publish(ctx, queue.Message{Type: queue.TypeAttendanceRecorded, Body: body}); err != nil {
		s.log.Warn("queue publish failed", zap.Error(err), zap.String("id", rec.ID))
	}
}

// List returns records for reporting.
func (s *Service) List(ctx context.Context, f Filter) ([]Record, error) {
	recs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// Summary counts accepted records per slot on the day containing day.
func (s *Service) Summary(ctx context.Context, day time.Time) ([]SlotCount, error) {
	start, end := DayBounds(day, s.loc)
	counts, err := s.store.CountBySlot(ctx, start, end)
	if err != nil {
		return nil, &PersistenceError{Op: "summary", Err: err}
	}
	return counts, nil
}

func (s *Service) validateInput(in RegisterInput) error {
	var missing []string
	var invalid []string
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ValidationError{Reason: err.Error()}
		}
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				missing = append(missing, fe.Field())
			} else {
				invalid = append(invalid, fe.Field())
			}
		}
	}
	if qrMissing(in.QRData) {
		missing = append(missing, "qrData")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	if len(invalid) > 0 {
		return &ValidationError{Fields: invalid, Reason: "Invalid appointmentSlot: must be 'first' or 'second'"}
	}
	return nil
}

func qrMissing(raw json.RawMessage) bool {
	body := bytes.TrimSpace(raw)
	return len(body) == 0 || bytes.Equal(body, []byte("null")) || bytes.Equal(body, []byte(`""`))
}

func trimInput(in RegisterInput) RegisterInput {
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.SupervisorID = strings.TrimSpace(in.SupervisorID)
	in.SupervisorName = strings.TrimSpace(in.SupervisorName)
	in.AppointmentSlot = Slot(strings.ToLower(strings.TrimSpace(string(in.AppointmentSlot))))
	return in
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func outcomeOf(err error) string {
	var (
		race *raceLostError
		dup  *DuplicateScanError
		ve   *ValidationError
		qe   *MalformedQRError
	)
	switch {
	case err == nil:
		return metrics.OutcomeAccepted
	case errors.As(err, &race):
		return metrics.OutcomeRace
	case errors.As(err, &dup):
		return metrics.OutcomeDuplicate
	case errors.As(err, &ve), errors.As(err, &qe):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
