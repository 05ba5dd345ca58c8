package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"medication-adherence/internal/domain/caregivers"
	"medication-adherence/internal/platform/metrics"
	"medication-adherence/internal/router"
)

// 09:30 UTC del 2 de mayo: la toma de las 08:00 lleva 90 minutos.
var fixedNow = time.Date(2025, 5, 2, 9, 30, 0, 0, time.UTC)

func newServer(t *testing.T, m *metrics.Metrics) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(router.NewRouter(router.Options{
		AuthVerifier: nil,
		Metrics:      m,
		Now:          func() time.Time { return fixedNow },
	}))
	t.Cleanup(ts.Close)
	return ts
}

type slot struct {
	RegimenID     string    `json:"regimen_id"`
	LogID         string    `json:"log_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Status        string    `json:"status"`
	IsOverdue     bool      `json:"is_overdue"`
	MinutesLate   int       `json:"minutes_late"`
	TakenLate     bool      `json:"taken_late"`
	Virtual       bool      `json:"virtual"`
}

func TestHTTP_EndToEnd_ScheduleAndLogging(t *testing.T) {
	ts := newServer(t, nil)
	patientID := "patient-1"

	regimenID := createRegimen(t, ts.URL, patientID, map[string]any{
		"medication_name": "Metformina",
		"frequency":       "twice_daily",
		"start_date":      "2025-05-01",
		"dosage":          map[string]any{"amount": 500, "unit": "mg"},
	})

	// 1) Agenda de hoy: dos slots virtuales, el de las 08:00 vencido
	day := getDay(t, ts.URL, "/schedule?date=2025-05-02", patientID)
	if len(day.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(day.Slots))
	}
	if !day.Slots[0].Virtual || !day.Slots[0].IsOverdue || day.Slots[0].MinutesLate != 90 {
		t.Fatalf("unexpected first slot: %+v", day.Slots[0])
	}
	if day.Slots[1].IsOverdue {
		t.Fatalf("20:00 slot should not be overdue: %+v", day.Slots[1])
	}

	// 2) Registrar la toma de las 08:00 con 90 min de retraso => warn_late
	{
		st, body := doReq(t, ts.URL, "POST", "/doses", patientID, map[string]any{
			"regimen_id":     regimenID,
			"scheduled_time": "2025-05-02T08:00:00Z",
			"status":         "taken",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 log dose, got %d body=%s", st, string(body))
		}
		var resp struct {
			Dose struct {
				Status string `json:"status"`
			} `json:"dose"`
			Decision  string `json:"decision"`
			TakenLate bool   `json:"taken_late"`
			Warning   string `json:"warning"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.Decision != "warn_late" || !resp.TakenLate || resp.Dose.Status != "taken" || resp.Warning == "" {
			t.Fatalf("expected warn_late taken dose, got %s", string(body))
		}
	}

	// 3) Segundo registro para el mismo slot => 409
	{
		st, _ := doReq(t, ts.URL, "POST", "/doses", patientID, map[string]any{
			"regimen_id":     regimenID,
			"scheduled_time": "2025-05-02T08:10:00Z",
			"status":         "skipped",
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 duplicate dose, got %d", st)
		}
	}

	// 4) Ayer 20:00 pasó la ventana: taken se guarda como missed
	{
		st, body := doReq(t, ts.URL, "POST", "/doses", patientID, map[string]any{
			"regimen_id":     regimenID,
			"scheduled_time": "2025-05-01T20:00:00Z",
			"status":         "taken",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 forced dose, got %d body=%s", st, string(body))
		}
		if !strings.Contains(string(body), `"decision":"force_missed"`) || !strings.Contains(string(body), `"status":"missed"`) {
			t.Fatalf("expected force_missed/missed, got %s", string(body))
		}
	}

	// 5) La agenda refleja el log
	day = getDay(t, ts.URL, "/schedule?date=2025-05-02", patientID)
	if day.Slots[0].Status != "taken" || day.Slots[0].Virtual || !day.Slots[0].TakenLate {
		t.Fatalf("expected logged late slot, got %+v", day.Slots[0])
	}

	// 6) Perdidas de los últimos 2 días: 1/5 08:00 (virtual) y 1/5 20:00 (log missed)
	{
		st, body := doReq(t, ts.URL, "GET", "/schedule/missed?days=2", patientID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 missed, got %d body=%s", st, string(body))
		}
		var resp struct {
			Slots []slot `json:"slots"`
		}
		_ = json.Unmarshal(body, &resp)
		if len(resp.Slots) != 2 {
			t.Fatalf("expected 2 missed slots, got %s", string(body))
		}
	}

	// 7) Adherencia: due 3 (dos de ayer + la de hoy), taken 1
	{
		st, body := doReq(t, ts.URL, "GET", "/adherence?from=2025-05-01&to=2025-05-02", patientID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 adherence, got %d body=%s", st, string(body))
		}
		var resp struct {
			Total struct {
				Due   int `json:"due"`
				Taken int `json:"taken"`
			} `json:"total"`
			CurrentStreak int `json:"current_streak"`
			Days          []any `json:"days"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.Total.Due != 3 || resp.Total.Taken != 1 || resp.CurrentStreak != 1 || len(resp.Days) != 2 {
			t.Fatalf("unexpected adherence: %s", string(body))
		}
	}
}

func TestHTTP_CloseCustomTimesLogSeparately(t *testing.T) {
	ts := newServer(t, nil)
	patientID := "patient-1"

	regimenID := createRegimen(t, ts.URL, patientID, map[string]any{
		"medication_name": "Insulina",
		"frequency":       "custom",
		"custom_schedule": []map[string]any{{"time": "08:00"}, {"time": "08:20"}},
		"start_date":      "2025-05-01",
	})

	for _, at := range []string{"2025-05-02T08:00:00Z", "2025-05-02T08:20:00Z"} {
		st, body := doReq(t, ts.URL, "POST", "/doses", patientID, map[string]any{
			"regimen_id":     regimenID,
			"scheduled_time": at,
			"status":         "taken",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 for %s, got %d body=%s", at, st, string(body))
		}
	}

	day := getDay(t, ts.URL, "/schedule?date=2025-05-02", patientID)
	if len(day.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %+v", day.Slots)
	}
	for _, s := range day.Slots {
		if s.Status != "taken" || s.Virtual {
			t.Fatalf("expected both slots taken, got %+v", day.Slots)
		}
	}

	st, body := doReq(t, ts.URL, "GET", "/schedule/missed?days=1", patientID, nil)
	if st != http.StatusOK || !strings.Contains(string(body), `"slots":[]`) {
		t.Fatalf("expected no missed slots, got %d body=%s", st, string(body))
	}
}

func TestHTTP_EndToEnd_CaregiverScopes(t *testing.T) {
	ts := newServer(t, nil)
	patientID := "patient-1"
	caregiverID := "caregiver-1"

	regimenID := createRegimen(t, ts.URL, patientID, map[string]any{
		"medication_name": "Losartán",
		"frequency":       "once_daily",
		"start_date":      "2025-05-01",
	})

	// 1) Sin vínculo no hay acceso
	if st, _ := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/schedule", caregiverID, nil); st != http.StatusForbidden {
		t.Fatalf("expected 403 before invite, got %d", st)
	}

	// 2) Invitación solo de lectura, pendiente de aceptar
	linkID := invite(t, ts.URL, patientID, caregiverID, []string{string(caregivers.ScopeScheduleRead)})
	if st, _ := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/schedule", caregiverID, nil); st != http.StatusForbidden {
		t.Fatalf("expected 403 before accept, got %d", st)
	}

	// 3) Acepta y puede leer
	if st, body := doReq(t, ts.URL, "POST", "/caregivers/"+linkID+"/accept", caregiverID, nil); st != http.StatusOK {
		t.Fatalf("expected 200 accept, got %d body=%s", st, string(body))
	}
	for _, path := range []string{"/schedule", "/schedule/missed", "/adherence", "/regimens", "/doses"} {
		if st, body := doReq(t, ts.URL, "GET", "/patients/"+patientID+path, caregiverID, nil); st != http.StatusOK {
			t.Fatalf("expected 200 on %s, got %d body=%s", path, st, string(body))
		}
	}

	dose := map[string]any{
		"regimen_id":     regimenID,
		"scheduled_time": "2025-05-02T08:00:00Z",
		"status":         "taken",
	}

	// 4) Sin doses:log no puede registrar
	if st, _ := doReq(t, ts.URL, "POST", "/patients/"+patientID+"/doses", caregiverID, dose); st != http.StatusForbidden {
		t.Fatalf("expected 403 logging without doses:log, got %d", st)
	}

	// 5) Re-invitar con doses:log actualiza el vínculo vigente
	invite(t, ts.URL, patientID, caregiverID, []string{string(caregivers.ScopeScheduleRead), string(caregivers.ScopeDosesLog)})
	st, body := doReq(t, ts.URL, "POST", "/patients/"+patientID+"/doses", caregiverID, dose)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 caregiver log, got %d body=%s", st, string(body))
	}
	if !strings.Contains(string(body), `"owner_user_id":"`+patientID+`"`) {
		t.Fatalf("dose must belong to the patient: %s", string(body))
	}
	if !strings.Contains(string(body), `"source":"caregiver"`) {
		t.Fatalf("expected caregiver source: %s", string(body))
	}

	// 6) El paciente la ve en su agenda
	day := getDay(t, ts.URL, "/schedule?date=2025-05-02", patientID)
	if len(day.Slots) != 1 || day.Slots[0].Status != "taken" {
		t.Fatalf("expected taken slot, got %+v", day.Slots)
	}

	// 7) Revocado pierde acceso inmediatamente
	if st, body := doReq(t, ts.URL, "POST", "/caregivers/"+linkID+"/revoke", patientID, nil); st != http.StatusOK {
		t.Fatalf("expected 200 revoke, got %d body=%s", st, string(body))
	}
	if st, _ := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/schedule", caregiverID, nil); st != http.StatusForbidden {
		t.Fatalf("expected 403 after revoke, got %d", st)
	}
}

func TestHTTP_RequiresIdentity(t *testing.T) {
	ts := newServer(t, nil)

	for _, path := range []string{"/schedule", "/regimens", "/doses", "/caregivers"} {
		if st, _ := doReq(t, ts.URL, "GET", path, "", nil); st != http.StatusUnauthorized {
			t.Fatalf("expected 401 on %s without identity, got %d", path, st)
		}
	}
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	ts := newServer(t, metrics.New())
	patientID := "patient-1"

	if st, body := doReq(t, ts.URL, "GET", "/health", "", nil); st != http.StatusOK || string(body) != "ok" {
		t.Fatalf("expected health ok, got %d %s", st, string(body))
	}

	createRegimen(t, ts.URL, patientID, map[string]any{
		"medication_name": "Metformina",
		"frequency":       "once_daily",
		"start_date":      "2025-05-01",
	})
	getDay(t, ts.URL, "/schedule", patientID)

	st, body := doReq(t, ts.URL, "GET", "/metrics", "", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 metrics, got %d", st)
	}
	if !strings.Contains(string(body), `adherence_slots_generated_total{status="pending"} 1`) {
		t.Fatalf("expected slot counter in metrics output")
	}
}

type dayBody struct {
	Date  string `json:"date"`
	Slots []slot `json:"slots"`
}

func getDay(t *testing.T, baseURL, path, userID string) dayBody {
	t.Helper()

	st, body := doReq(t, baseURL, "GET", path, userID, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 schedule, got %d body=%s", st, string(body))
	}
	var out dayBody
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	return out
}

func createRegimen(t *testing.T, baseURL, userID string, payload map[string]any) string {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/regimens", userID, payload)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create regimen, got %d body=%s", st, string(body))
	}

	var resp struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &resp)
	if resp.ID == "" {
		t.Fatalf("create regimen: missing id body=%s", string(body))
	}
	return resp.ID
}

func invite(t *testing.T, baseURL, patientID, caregiverID string, scopes []string) string {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/caregivers", patientID, map[string]any{
		"caregiver_user_id": caregiverID,
		"scopes":            scopes,
	})
	if st != http.StatusCreated {
		t.Fatalf("expected 201 invite, got %d body=%s", st, string(body))
	}

	var resp struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &resp)
	if resp.ID == "" {
		t.Fatalf("invite: missing id body=%s", string(body))
	}
	return resp.ID
}

func doReq(t *testing.T, baseURL, method, path, debugUserID string, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if debugUserID != "" {
		req.Header.Set("X-Debug-User-ID", debugUserID)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, respBody
}
