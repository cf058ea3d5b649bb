package attendance

import (
	"encoding/json"
	"time"
)

// Slot is a named time window within a day that a student can be marked present for.
type Slot string

const (
	SlotFirst  Slot = "first"
	SlotSecond Slot = "second"
)

// StatusPresent is the only status an accepted scan carries.
const StatusPresent = "Present"

// Valid reports whether s is one of the known slots.
func (s Slot) Valid() bool {
	return s == SlotFirst || s == SlotSecond
}

// OrDefault returns SlotFirst when s is empty.
func (s Slot) OrDefault() Slot {
	if s == "" {
		return SlotFirst
	}
	return s
}

// Record is one accepted attendance scan. Records are insert-only.
type Record struct {
	ID               string          `json:"id" bson:"_id"`
	StudentID        string          `json:"studentId" bson:"studentId"`
	QRStudentID      string          `json:"qrStudentId,omitempty" bson:"qrStudentId,omitempty"`
	StudentName      string          `json:"studentName" bson:"studentName"`
	StudentEmail     string          `json:"studentEmail" bson:"studentEmail"`
	StudentPhone     string          `json:"studentPhone" bson:"studentPhone"`
	StudentCollege   string          `json:"studentCollege" bson:"studentCollege"`
	StudentGrade     string          `json:"studentGrade" bson:"studentGrade"`
	StudentMajor     string          `json:"studentMajor" bson:"studentMajor"`
	StudentAddress   string          `json:"studentAddress" bson:"studentAddress"`
	Date             time.Time       `json:"date" bson:"date"`
	DateKey          string          `json:"dateKey" bson:"dateKey"`
	AppointmentSlot  Slot            `json:"appointmentSlot" bson:"appointmentSlot"`
	CheckInTime      time.Time       `json:"checkInTime" bson:"checkInTime"`
	ScanTimestamp    time.Time       `json:"scanTimestamp" bson:"scanTimestamp"`
	SupervisorID     string          `json:"supervisorId" bson:"supervisorId"`
	SupervisorName   string          `json:"supervisorName" bson:"supervisorName"`
	ConcurrentScanID string          `json:"concurrentScanId" bson:"concurrentScanId"`
	Status           string          `json:"status" bson:"status"`
	StationInfo      json.RawMessage `json:"stationInfo,omitempty" bson:"-"`
}

// RegisterInput is a scan submitted by a supervisor device.
type RegisterInput struct {
	StudentID       string          `json:"studentId" validate:"required"`
	SupervisorID    string          `json:"supervisorId" validate:"required"`
	SupervisorName  string          `json:"supervisorName"`
	QRData          json.RawMessage `json:"qrData"`
	AppointmentSlot Slot            `json:"appointmentSlot" validate:"omitempty,oneof=first second"`
	StationInfo     json.RawMessage `json:"stationInfo"`
}

// Lookup selects records of one student for one slot within [Start, End].
type Lookup struct {
	StudentID string
	Slot      Slot
	Start     time.Time
	End       time.Time
}

// Filter narrows record listings for reporting.
type Filter struct {
	SupervisorID string
	Start        time.Time
	End          time.Time
	Status       string
	Limit        int
	Offset       int
}

// SlotCount is the number of accepted records for one slot.
type SlotCount struct {
	Slot  Slot  `json:"appointmentSlot"`
	Count int64 `json:"count"`
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
