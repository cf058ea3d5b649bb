package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicateKey is returned by a Store when an insert violates a unique index.
var ErrDuplicateKey = errors.New("attendance: duplicate key")

// ValidationError reports missing or invalid request fields.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}

// MalformedQRError reports a QR payload that is not a JSON object.
type MalformedQRError struct {
	Err error
}

func (e *MalformedQRError) Error() string {
	return "Invalid QR code data format"
}

func (e *MalformedQRError) Unwrap() error { return e.Err }

// ExistingAttendance summarizes the record that won a slot.
type ExistingAttendance struct {
	ID              string    `json:"id"`
	StudentName     string    `json:"studentName"`
	SupervisorName  string    `json:"supervisorName"`
	CheckInTime     time.Time `json:"checkInTime"`
	AppointmentSlot Slot      `json:"appointmentSlot"`
}

// DuplicateScanError means the student already has an accepted record for the slot today.
type DuplicateScanError struct {
	StudentName string
	Slot        Slot
	Existing    ExistingAttendance
}

func (e *DuplicateScanError) Error() string {
	by := e.Existing.SupervisorName
	if by == "" {
		by = "another supervisor"
	}
	return fmt.Sprintf("Student %s has already been scanned by %s for the %s appointment today", e.StudentName, by, e.Slot)
}

// PersistenceError wraps any other store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("attendance %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func newDuplicate(studentName string, slot Slot, existing *Record) *DuplicateScanError {
	dup := &DuplicateScanError{StudentName: studentName, Slot: slot}
	if existing != nil {
		dup.Existing = ExistingAttendance{
			ID:              existing.ID,
			StudentName:     existing.StudentName,
			SupervisorName:  existing.SupervisorName,
			CheckInTime:     existing.CheckInTime,
			AppointmentSlot: existing.AppointmentSlot,
		}
		if existing.StudentName != "" {
			dup.StudentName = existing.StudentName
		}
	} else {
		dup.Existing.AppointmentSlot = slot
	}
	return dup
}
