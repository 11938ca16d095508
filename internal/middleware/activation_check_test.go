package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ok200 writes 200 OK; it proves the middleware let the request through.
var ok200 = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func activationRequest(body string) (*httptest.ResponseRecorder, *http.Request) {
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/activate", strings.NewReader(body))
	return httptest.NewRecorder(), req
}

// ---------------------------------------------------------------------------
// 1. Valid activation body -> 200 and the body is still readable downstream
// ---------------------------------------------------------------------------

func TestActivationCheck_PassesValidBody(t *testing.T) {
	body := `{"source":"gig","invoicing_method":"completion","total_budget_cents":500000,"total_tasks":3}`

	var downstream string
	handler := ActivationCheck()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		downstream = string(b)
		w.WriteHeader(http.StatusOK)
	}))

	rec, req := activationRequest(body)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if downstream != body {
		t.Errorf("handler should see the original body, got: %s", downstream)
	}
}

// ---------------------------------------------------------------------------
// 2. Non-positive budget or task count -> 400
// ---------------------------------------------------------------------------

func TestActivationCheck_RejectsBadNumbers(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"zero budget", `{"source":"gig","total_budget_cents":0,"total_tasks":3}`, "total_budget_cents"},
		{"negative budget", `{"source":"gig","total_budget_cents":-100,"total_tasks":3}`, "total_budget_cents"},
		{"zero tasks", `{"source":"gig","total_budget_cents":500000,"total_tasks":0}`, "total_tasks"},
	}
	handler := ActivationCheck()(ok200)
	for _, tc := range cases {
		rec, req := activationRequest(tc.body)
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), tc.want) {
			t.Errorf("%s: expected error naming %s, got: %s", tc.name, tc.want, rec.Body.String())
		}
	}
}

// ---------------------------------------------------------------------------
// 3. Unknown source -> 400
// ---------------------------------------------------------------------------

func TestActivationCheck_RejectsUnknownSource(t *testing.T) {
	handler := ActivationCheck()(ok200)
	rec, req := activationRequest(`{"source":"referral","total_budget_cents":500000,"total_tasks":3}`)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "not allowed") {
		t.Errorf("expected source-not-allowed error, got: %s", rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 4. Foreign invoicing method -> 422
// ---------------------------------------------------------------------------

func TestActivationCheck_RejectsForeignMethod(t *testing.T) {
	handler := ActivationCheck()(ok200)
	rec, req := activationRequest(`{"source":"gig","invoicing_method":"milestone","total_budget_cents":500000,"total_tasks":3}`)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 5. Malformed JSON -> 400
// ---------------------------------------------------------------------------

func TestActivationCheck_RejectsMalformedJSON(t *testing.T) {
	handler := ActivationCheck()(ok200)
	rec, req := activationRequest(`{"source":`)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
