package identity

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/tshla/medical-core/internal/platform/auth"
)

func newTestServer(t *testing.T, repo Repository) *echo.Echo {
	t.Helper()
	e := echo.New()
	h := NewHandler(newTestService(repo, NewRandomIssuer()))
	h.RegisterRoutes(e.Group("/api/v1"))
	return e
}

func doRequest(e *echo.Echo, actor auth.Actor, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_OnboardAndLookup(t *testing.T) {
	repo := newMemRepo()
	e := newTestServer(t, repo)

	rec := doRequest(e, staff, http.MethodPost, "/api/v1/patients",
		`{"mrn":"EXT-001","first_name":"Ada","last_name":"Nguyen"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("onboard status = %d, body %s", rec.Code, rec.Body.String())
	}

	var portalID string
	for v := range repo.byPortal {
		portalID = v
	}
	rec = doRequest(e, nobody, http.MethodGet, "/api/v1/portal/lookup/"+url.PathEscape(portalID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous lookup status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"registered":true`) {
		t.Errorf("lookup body = %s", rec.Body.String())
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	repo := newMemRepo()
	e := newTestServer(t, repo)

	rec := doRequest(e, staff, http.MethodPost, "/api/v1/patients",
		`{"mrn":"EXT-001","first_name":"Ada","last_name":"Nguyen"}`)
	if rec.Code != http.StatusCreated {
		t.Fatal(rec.Body.String())
	}
	var internalID string
	for id := range repo.byInternal {
		internalID = id.String()
	}

	tests := []struct {
		name   string
		actor  auth.Actor
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed patient id", staff, http.MethodGet, "/api/v1/patients/by-patient-id/1234567", "", http.StatusBadRequest},
		{"immutable patient_id in patch", staff, http.MethodPatch, "/api/v1/patients/" + internalID, `{"patient_id":"00000000"}`, http.StatusBadRequest},
		{"immutable portal_id in patch", staff, http.MethodPatch, "/api/v1/patients/" + internalID, `{"portal_id":"TSH 000-000"}`, http.StatusBadRequest},
		{"anonymous onboard", nobody, http.MethodPost, "/api/v1/patients", `{"first_name":"A","last_name":"B"}`, http.StatusForbidden},
		{"anonymous list", nobody, http.MethodGet, "/api/v1/patients", "", http.StatusForbidden},
		{"malformed portal lookup", nobody, http.MethodGet, "/api/v1/portal/lookup/nope", "", http.StatusBadRequest},
		{"absent patient as staff", staff, http.MethodGet, "/api/v1/patients/by-patient-id/00000000", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, tt.actor, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHandler_DenialsAreGeneric(t *testing.T) {
	repo := newMemRepo()
	e := newTestServer(t, repo)

	rec := doRequest(e, nobody, http.MethodGet, "/api/v1/patients", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "policy") {
		t.Errorf("denial leaked policy detail: %s", rec.Body.String())
	}
}
