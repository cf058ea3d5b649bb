package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"shuttleattendance/internal/attendance"
	"shuttleattendance/internal/auth"
	"shuttleattendance/internal/tally"
)

const (
	testKey    = "handler-test-key"
	testIssuer = "shuttle-test"
)

var testNow = time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)

type fakeTally struct {
	day tally.Day
	err error
}

func (f fakeTally) Day(_ context.Context, dateKey string) (tally.Day, error) {
	d := f.day
	d.Date = dateKey
	return d, f.err
}

type env struct {
	router *gin.Engine
	store  *attendance.MemoryStore
}

func newEnv(t *testing.T, tr TallyReader) env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := attendance.NewMemoryStore()
	svc := attendance.NewService(st,
		attendance.WithLocation(time.UTC),
		attendance.WithClock(func() time.Time { return testNow }))
	h := New(svc, tr, Config{
		SigningKey:  testKey,
		Issuer:      testIssuer,
		AccessTTL:   time.Hour,
		RefreshTTL:  2 * time.Hour,
		IssueTokens: true,
	}, nil)
	h.AddCheck("store", st.Ping)
	r := gin.New()
	h.Routes(r, nil)
	return env{router: r, store: st}
}

func token(t *testing.T, subject, name, role string) string {
	t.Helper()
	pair, err := auth.Issue(subject, name, role, testIssuer, testKey, time.Hour, 2*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return pair.AccessToken
}

func (e env) do(t *testing.T, method, path, tok string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, out
}

func registerBody(student, supervisor, name string, qr any) map[string]any {
	return map[string]any{
		"studentId":      student,
		"supervisorId":   supervisor,
		"supervisorName": name,
		"qrData":         qr,
	}
}

var qrObject = map[string]any{"id": "S1", "fullName": "Lina Haddad", "email": "lina@example.com", "college": "Engineering"}

func TestRegisterThenDuplicate(t *testing.T) {
	e := newEnv(t, nil)
	tokA := token(t, "sup-a", "Ahmed", auth.RoleSupervisor)
	tokB := token(t, "sup-b", "Bilal", auth.RoleSupervisor)

	code, body := e.do(t, http.MethodPost, "/v1/attendance/register", tokA, registerBody("S1", "sup-a", "Ahmed", qrObject))
	if code != http.StatusCreated || body["success"] != true {
		t.Fatalf("first scan: %d %v", code, body)
	}
	rec := body["attendance"].(map[string]any)
	if rec["status"] != "Present" || rec["appointmentSlot"] != "first" {
		t.Fatalf("record = %v", rec)
	}

	code, body = e.do(t, http.MethodPost, "/v1/attendance/register", tokB, registerBody("S1", "sup-b", "Bilal", qrObject))
	if code != http.StatusConflict || body["success"] != false || body["isDuplicate"] != true {
		t.Fatalf("second scan: %d %v", code, body)
	}
	existing := body["existingAttendance"].(map[string]any)
	if existing["supervisorName"] != "Ahmed" || existing["id"] != rec["id"] || existing["appointmentSlot"] != "first" {
		t.Fatalf("existingAttendance = %v", existing)
	}
	if existing["studentName"] != "Lina Haddad" || existing["checkInTime"] == nil {
		t.Fatalf("existingAttendance = %v", existing)
	}
}

func TestRegisterSecondSlotAccepted(t *testing.T) {
	e := newEnv(t, nil)
	tok := token(t, "sup-a", "Ahmed", auth.RoleSupervisor)

	if code, body := e.do(t, http.MethodPost, "/v1/attendance/register", tok, registerBody("S1", "sup-a", "Ahmed", qrObject)); code != http.StatusCreated {
		t.Fatalf("first slot: %d %v", code, body)
	}
	b := registerBody("S1", "sup-a", "Ahmed", qrObject)
	b["appointmentSlot"] = "second"
	if code, body := e.do(t, http.MethodPost, "/v1/attendance/register", tok, b); code != http.StatusCreated {
		t.Fatalf("second slot: %d %v", code, body)
	}
}

func TestConcurrentRegisterOneWinnerOneConflict(t *testing.T) {
	e := newEnv(t, nil)
	toks := []string{
		token(t, "sup-a", "Ahmed", auth.RoleSupervisor),
		token(t, "sup-b", "Bilal", auth.RoleSupervisor),
	}
	sups := []string{"sup-a", "sup-b"}

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		codes = make([]int, 2)
	)
	for i := range toks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			codes[i], _ = e.do(t, http.MethodPost, "/v1/attendance/register", toks[i], registerBody("S1", sups[i], "", qrObject))
		}(i)
	}
	close(start)
	wg.Wait()

	created, conflicts := 0, 0
	for _, c := range codes {
		switch c {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		}
	}
	if created != 1 || conflicts != 1 {
		t.Fatalf("codes = %v", codes)
	}
	if e.store.Len() != 1 {
		t.Fatalf("store has %d records", e.store.Len())
	}
}

func TestRegisterMalformedQR(t *testing.T) {
	e := newEnv(t, nil)
	tok := token(t, "sup-a", "Ahmed", auth.RoleSupervisor)

	code, body := e.do(t, http.MethodPost, "/v1/attendance/register", tok, registerBody("S1", "sup-a", "Ahmed", "{not valid json"))
	if code != http.StatusBadRequest || body["error"] != "MalformedQRError" || body["success"] != false {
		t.Fatalf("got %d %v", code, body)
	}
}

func TestRegisterIncompleteQRUsesDefaults(t *testing.T) {
	e := newEnv(t, nil)
	tok := token(t, "sup-a", "Ahmed", auth.RoleSupervisor)

	code, body := e.do(t, http.MethodPost, "/v1/attendance/register", tok, registerBody("S1", "sup-a", "", `{"fullName":"Omar"}`))
	if code != http.StatusCreated {
		t.Fatalf("got %d %v", code, body)
	}
	rec := body["attendance"].(map[string]any)
	if rec["studentEmail"] != "" || rec["studentCollege"] != "Not specified" {
		t.Fatalf("defaults not applied: %v", rec)
	}
	if rec["supervisorName"] != "Ahmed" {
		t.Fatalf("supervisor name should come from the token, got %v", rec["supervisorName"])
	}
}

func TestRegisterValidationAndAuth(t *testing.T) {
	e := newEnv(t, nil)
	tok := token(t, "sup-a", "Ahmed", auth.RoleSupervisor)

	code, body := e.do(t, http.MethodPost, "/v1/attendance/register", tok, map[string]any{"supervisorId": "sup-a"})
	if code != http.StatusBadRequest || body["error"] != "ValidationError" {
		t.Fatalf("missing fields: %d %v", code, body)
	}

	code, _ = e.do(t, http.MethodPost, "/v1/attendance/register", tok, registerBody("S1", "sup-z", "", qrObject))
	if code != http.StatusForbidden {
		t.Fatalf("supervisor mismatch: %d", code)
	}

	code, _ = e.do(t, http.MethodPost, "/v1/attendance/register", "", registerBody("S1", "sup-a", "", qrObject))
	if code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/attendance/register", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("broken body: %d", w.Code)
	}
}

func TestAdminReports(t *testing.T) {
	e := newEnv(t, fakeTally{day: tally.Day{Total: 2, Slots: map[string]int64{"first": 2}}})
	sup := token(t, "sup-a", "Ahmed", auth.RoleSupervisor)
	admin := token(t, "adm", "Admin", auth.RoleAdmin)

	for _, s := range []string{"S1", "S2"} {
		if code, body := e.do(t, http.MethodPost, "/v1/attendance/register", sup, registerBody(s, "sup-a", "Ahmed", qrObject)); code != http.StatusCreated {
			t.Fatalf("register %s: %d %v", s, code, body)
		}
	}

	if code, _ := e.do(t, http.MethodGet, "/v1/attendance", sup, nil); code != http.StatusForbidden {
		t.Fatalf("supervisor listing: %d", code)
	}

	code, body := e.do(t, http.MethodGet, "/v1/attendance?supervisorId=sup-a&date=2024-05-01", admin, nil)
	if code != http.StatusOK || body["count"].(float64) != 2 {
		t.Fatalf("list: %d %v", code, body)
	}
	code, body = e.do(t, http.MethodGet, "/v1/attendance?date=2024-05-02", admin, nil)
	if code != http.StatusOK || body["count"].(float64) != 0 {
		t.Fatalf("list other day: %d %v", code, body)
	}
	if code, _ := e.do(t, http.MethodGet, "/v1/attendance?date=yesterday", admin, nil); code != http.StatusBadRequest {
		t.Fatalf("bad date: %d", code)
	}

	code, body = e.do(t, http.MethodGet, "/v1/attendance/summary?date=2024-05-01", admin, nil)
	if code != http.StatusOK || body["total"].(float64) != 2 || body["date"] != "2024-05-01" {
		t.Fatalf("summary: %d %v", code, body)
	}

	code, body = e.do(t, http.MethodGet, "/v1/attendance/tally?date=2024-05-01", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("tally: %d %v", code, body)
	}
	if tl := body["tally"].(map[string]any); tl["date"] != "2024-05-01" || tl["total"].(float64) != 2 {
		t.Fatalf("tally body = %v", tl)
	}
}

func TestTallyUnavailable(t *testing.T) {
	admin := token(t, "adm", "Admin", auth.RoleAdmin)

	e := newEnv(t, nil)
	if code, _ := e.do(t, http.MethodGet, "/v1/attendance/tally", admin, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("nil tally: %d", code)
	}

	e = newEnv(t, fakeTally{err: errors.New("redis down")})
	code, body := e.do(t, http.MethodGet, "/v1/attendance/tally", admin, nil)
	if code != http.StatusInternalServerError || body["message"] == "redis down" {
		t.Fatalf("tally error must be sanitized: %d %v", code, body)
	}
}

func TestIssueSession(t *testing.T) {
	e := newEnv(t, nil)
	code, body := e.do(t, http.MethodPost, "/v1/supervisors/session", "", map[string]any{"supervisorId": "sup-a", "supervisorName": "Ahmed"})
	if code != http.StatusCreated {
		t.Fatalf("session: %d %v", code, body)
	}
	claims, err := auth.Parse(body["access_token"].(string), testKey, testIssuer)
	if err != nil || claims.Subject != "sup-a" || claims.Role != auth.RoleSupervisor {
		t.Fatalf("claims = %+v, %v", claims, err)
	}

	if code, _ := e.do(t, http.MethodPost, "/v1/supervisors/session", "", map[string]any{"supervisorId": "x", "role": "root"}); code != http.StatusBadRequest {
		t.Fatalf("bad role: %d", code)
	}
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, nil)
	code, body := e.do(t, http.MethodGet, "/healthz", "", nil)
	if code != http.StatusOK || body["dependencies"].(map[string]any)["store"] != true {
		t.Fatalf("healthz: %d %v", code, body)
	}
}
