package syncer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/phcodesage/trail-zap/internal/storage"
)

func TestSyncHandlers(t *testing.T) {
	q := newQueue(t)
	engine := NewEngine(q, &fakeRemote{}, fakeIdentity{"user-1"}, onlineMonitor(false), time.Hour)
	app := fiber.New()
	RegisterRoutes(app.Group("/sync"), engine)

	body, _ := json.Marshal(SaveRequest{Session: finishedSession(), Name: "Lunch loop"})
	req := httptest.NewRequest(http.MethodPost, "/sync/save", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusAccepted {
		t.Fatalf("save status: %v %d", err, resp.StatusCode)
	}
	var out SaveOutcome
	json.NewDecoder(resp.Body).Decode(&out)

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/sync/pending", nil))
	var pending []storage.PendingActivity
	json.NewDecoder(resp.Body).Decode(&pending)
	if len(pending) != 1 || pending[0].LocalID != out.LocalID || pending[0].Name != "Lunch loop" {
		t.Fatalf("pending = %+v", pending)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodPost, "/sync", nil))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("sync while offline status = %d, want 409", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/sync/status", nil))
	var st State
	json.NewDecoder(resp.Body).Decode(&st)
	if st.Status != StatusIdle {
		t.Fatalf("status = %+v", st)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodDelete, "/sync/pending/"+out.LocalID, nil))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("discard status = %d", resp.StatusCode)
	}
	resp, _ = app.Test(httptest.NewRequest(http.MethodDelete, "/sync/pending/"+out.LocalID, nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second discard status = %d, want 404", resp.StatusCode)
	}
}

func TestSyncHandlersOnline(t *testing.T) {
	q := newQueue(t)
	enqueue(t, q, "first")
	engine := NewEngine(q, &fakeRemote{}, fakeIdentity{"user-1"}, onlineMonitor(true), time.Hour)
	app := fiber.New()
	RegisterRoutes(app.Group("/sync"), engine)

	resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/sync", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d", resp.StatusCode)
	}
	var report Report
	json.NewDecoder(resp.Body).Decode(&report)
	if report.Status != StatusCompleted || report.Synced != 1 || report.Purged != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestSyncHandlersBadSave(t *testing.T) {
	engine := NewEngine(newQueue(t), &fakeRemote{}, fakeIdentity{}, onlineMonitor(false), time.Hour)
	app := fiber.New()
	RegisterRoutes(app.Group("/sync"), engine)

	for _, body := range []string{"{", `{"name":"x"}`, `{"session":{"start_time":"2024-05-01T08:00:00Z"},"avg_hr":900}`} {
		req := httptest.NewRequest(http.MethodPost, "/sync/save", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %s status = %d, want 400", body, resp.StatusCode)
		}
	}
}
