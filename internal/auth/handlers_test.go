package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestSessionHandlers(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), NewIdentity("secret", &memTokens{}))

	token, _ := IssueToken("secret", "user-1", time.Hour)
	body, _ := json.Marshal(signInRequest{Token: token})
	req := httptest.NewRequest(http.MethodPost, "/auth/session", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("sign in status: %v", err)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	var state struct {
		Authenticated bool   `json:"authenticated"`
		UserID        string `json:"user_id"`
	}
	json.NewDecoder(resp.Body).Decode(&state)
	if !state.Authenticated || state.UserID != "user-1" {
		t.Fatalf("session = %+v", state)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodDelete, "/auth/session", nil))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("sign out status = %d", resp.StatusCode)
	}
}

func TestSessionHandlersBadRequests(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), NewIdentity("secret", nil))

	req := httptest.NewRequest(http.MethodPost, "/auth/session", bytes.NewReader([]byte("{bad")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request")
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/session", bytes.NewReader([]byte(`{"token":"bad"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized")
	}
}
