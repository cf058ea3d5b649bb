package attendance

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

const (
	unknownStudent = "Unknown Student"
	notSpecified   = "Not specified"
)

// StudentIdentitySnapshot is the student identity carried in a QR payload at scan time.
type StudentIdentitySnapshot struct {
	ID      string
	Name    string
	Email   string
	Phone   string
	College string
	Grade   string
	Major   string
	Address string
}

// qrPayload accepts the field spellings seen from the portal's QR generator.
// Values are kept raw because generators emit numbers for phones and grades.
type qrPayload struct {
	ID        json.RawMessage `json:"id"`
	MongoID   json.RawMessage `json:"_id"`
	StudentID json.RawMessage `json:"studentId"`
	FullName  json.RawMessage `json:"fullName"`
	Name      json.RawMessage `json:"name"`
	Email     json.RawMessage `json:"email"`
	Phone     json.RawMessage `json:"phoneNumber"`
	AltPhone  json.RawMessage `json:"phone"`
	College   json.RawMessage `json:"college"`
	Grade     json.RawMessage `json:"grade"`
	Major     json.RawMessage `json:"major"`
	Address   json.RawMessage `json:"address"`
}

// ParseQR decodes a QR payload given either as a JSON object or as a JSON string
// holding serialized JSON. Missing fields get defaults; only undecodable input fails.
func ParseQR(raw json.RawMessage) (StudentIdentitySnapshot, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return StudentIdentitySnapshot{}, &MalformedQRError{Err: errors.New("empty payload")}
	}
	if body[0] == '"' {
		var text string
		if err := json.Unmarshal(body, &text); err != nil {
			return StudentIdentitySnapshot{}, &MalformedQRError{Err: err}
		}
		body = bytes.TrimSpace([]byte(text))
	}
	if len(body) == 0 || body[0] != '{' {
		return StudentIdentitySnapshot{}, &MalformedQRError{Err: errors.New("payload is not a JSON object")}
	}

	var p qrPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return StudentIdentitySnapshot{}, &MalformedQRError{Err: err}
	}

	return StudentIdentitySnapshot{
		ID:      firstID(p.ID, p.MongoID, p.StudentID),
		Name:    orDefault(firstText(p.FullName, p.Name), unknownStudent),
		Email:   firstText(p.Email),
		Phone:   orDefault(firstText(p.Phone, p.AltPhone), notSpecified),
		College: orDefault(firstText(p.College), notSpecified),
		Grade:   orDefault(firstText(p.Grade), notSpecified),
		Major:   orDefault(firstText(p.Major), notSpecified),
		Address: orDefault(firstText(p.Address), notSpecified),
	}, nil
}

// firstID returns the first identifier given as text, a number or an extended JSON object id.
func firstID(candidates ...json.RawMessage) string {
	for _, c := range candidates {
		if isBool(c) {
			continue
		}
		if v := scalarText(c); v != "" {
			return v
		}
		// Extended JSON object ids: {"$oid": "..."}
		var oid struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(c, &oid); err == nil && strings.TrimSpace(oid.OID) != "" {
			return strings.TrimSpace(oid.OID)
		}
	}
	return ""
}

func isBool(raw json.RawMessage) bool {
	body := bytes.TrimSpace(raw)
	return bytes.Equal(body, []byte("true")) || bytes.Equal(body, []byte("false"))
}

// firstText returns the first candidate holding a non-empty scalar.
func firstText(candidates ...json.RawMessage) string {
	for _, c := range candidates {
		if v := scalarText(c); v != "" {
			return v
		}
	}
	return ""
}

// scalarText renders a string, number or bool as trimmed text.
// null, arrays and objects count as missing.
func scalarText(raw json.RawMessage) string {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return ""
	}
	switch body[0] {
	case '"':
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(body, &b); err != nil {
			return ""
		}
		return strconv.FormatBool(b)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(body, &n); err != nil {
			return ""
		}
		return n.String()
	}
	return ""
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
