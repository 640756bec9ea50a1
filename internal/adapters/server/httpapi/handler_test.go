package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ycnlabs/prospect/internal/app"
	"github.com/ycnlabs/prospect/internal/domain"
)

// stubLeadService backs REST handler tests with a real board and scriptable
// failures for each coordinator operation.
type stubLeadService struct {
	board *app.Board

	refreshErr error
	createErr  error
	moveErr    error
	deleteErr  error

	refreshes int
	lastMove  struct {
		id     string
		column domain.Column
	}
	deleted []string
}

func newStubLeadService(leads ...domain.Lead) *stubLeadService {
	board := app.NewBoard()
	board.Replace(leads)
	return &stubLeadService{board: board}
}

func (s *stubLeadService) Board() *app.Board { return s.board }

func (s *stubLeadService) RefreshLeads(context.Context) error {
	s.refreshes++
	return s.refreshErr
}

func (s *stubLeadService) CreateLead(_ context.Context, name string, rating domain.Rating) (domain.Lead, error) {
	if s.createErr != nil {
		return domain.Lead{}, s.createErr
	}
	input, err := domain.NewLeadInput(name, rating)
	if err != nil {
		return domain.Lead{}, err
	}
	lead := domain.Lead{
		ID:        "created-1",
		Name:      input.Name,
		Rating:    input.Rating,
		CreatedAt: time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC),
	}
	s.board.Insert(lead)
	return lead, nil
}

func (s *stubLeadService) MoveLead(_ context.Context, id string, column domain.Column) error {
	s.lastMove.id = id
	s.lastMove.column = column
	if s.moveErr != nil {
		return s.moveErr
	}
	rating, err := column.Rating()
	if err != nil {
		return err
	}
	if _, ok := s.board.ApplyRating(id, rating); !ok {
		return app.ErrLeadNotFound
	}
	return nil
}

func (s *stubLeadService) DeleteLead(_ context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	s.board.Remove(id)
	return nil
}

func sampleLead(id, name string, rating domain.Rating) domain.Lead {
	return domain.Lead{
		ID:        id,
		Name:      name,
		Rating:    rating,
		CreatedAt: time.Date(2026, time.February, 1, 9, 0, 0, 0, time.UTC),
	}
}

// doRequest serves one request against the handler and returns the recorder.
func doRequest(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeBody decodes one JSON response body into a generic map.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return decoded
}

// errorCode extracts the structured error code from one response body.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	decoded := decodeBody(t, rec)
	envelope, ok := decoded["error"].(map[string]any)
	if !ok {
		t.Fatalf("error envelope missing: %#v", decoded)
	}
	code, _ := envelope["code"].(string)
	return code
}

func TestListLeadsRefreshesAndReturnsBoardOrder(t *testing.T) {
	svc := newStubLeadService(
		sampleLead("lead-1", "Northwind", domain.RatingHot),
		sampleLead("lead-2", "Contoso", domain.RatingCold),
	)
	handler := NewHandler(svc)

	rec := doRequest(t, handler, http.MethodGet, "/leads", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	decoded := decodeBody(t, rec)
	leadsRaw, ok := decoded["leads"].([]any)
	if !ok {
		t.Fatalf("leads missing in response: %#v", decoded)
	}
	if len(leadsRaw) != 2 {
		t.Fatalf("len(leads) = %d, want 2", len(leadsRaw))
	}
	first, ok := leadsRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first lead has unexpected type: %#v", leadsRaw[0])
	}
	if got := first["name"]; got != "Northwind" {
		t.Fatalf("leads[0].name = %v, want Northwind", got)
	}
	if svc.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", svc.refreshes)
	}
}

func TestListLeadsWithoutCredentialsReturnsUnauthorized(t *testing.T) {
	svc := newStubLeadService()
	svc.refreshErr = app.ErrAuthRequired
	handler := NewHandler(svc)

	rec := doRequest(t, handler, http.MethodGet, "/leads", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if code := errorCode(t, rec); code != "auth_required" {
		t.Fatalf("error code = %q, want auth_required", code)
	}
}

func TestCreateLeadReturnsCreatedPayload(t *testing.T) {
	svc := newStubLeadService()
	handler := NewHandler(svc)

	rec := doRequest(t, handler, http.MethodPost, "/leads",
		`{"name":"Fabrikam","column":"warm"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	decoded := decodeBody(t, rec)
	if got := decoded["name"]; got != "Fabrikam" {
		t.Fatalf("name = %v, want Fabrikam", got)
	}
	if got := decoded["column"]; got != "warm" {
		t.Fatalf("column = %v, want warm", got)
	}
	if got := decoded["rating"]; got != float64(domain.RatingWarm) {
		t.Fatalf("rating = %v, want %d", got, domain.RatingWarm)
	}
}

func TestCreateLeadDefaultsToColdColumn(t *testing.T) {
	svc := newStubLeadService()
	handler := NewHandler(svc)

	rec := doRequest(t, handler, http.MethodPost, "/leads", `{"name":"Fabrikam"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	decoded := decodeBody(t, rec)
	if got := decoded["column"]; got != "cold" {
		t.Fatalf("column = %v, want cold", got)
	}
}

func TestCreateLeadRejectsMalformedBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"name":`},
		{name: "unknown field", body: `{"name":"a","priority":3}`},
		{name: "trailing content", body: `{"name":"a"}{"name":"b"}`},
		{name: "unknown column", body: `{"name":"a","column":"tepid"}`},
		{name: "blank name", body: `{"name":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(newStubLeadService())
			rec := doRequest(t, handler, http.MethodPost, "/leads", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if code := errorCode(t, rec); code != "invalid_request" {
				t.Fatalf("error code = %q, want invalid_request", code)
			}
		})
	}
}

func TestMoveLeadReturnsUpdatedLead(t *testing.T) {
	svc := newStubLeadService(sampleLead("lead-1", "Northwind", domain.RatingCold))
	handler := NewHandler(svc)

	rec := doRequest(t, handler, http.MethodPost, "/leads/lead-1/move",
		`{"column":"hot"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	decoded := decodeBody(t, rec)
	if got := decoded["column"]; got != "hot" {
		t.Fatalf("column = %v, want hot", got)
	}
	if svc.lastMove.id != "lead-1" || svc.lastMove.column != domain.ColumnHot {
		t.Fatalf("move call = %+v, want lead-1/hot", svc.lastMove)
	}
}

func TestMoveUnknownLeadReturnsNotFound(t *testing.T) {
	handler := NewHandler(newStubLeadService())

	rec := doRequest(t, handler, http.MethodPost, "/leads/missing/move",
		`{"column":"hot"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if code := errorCode(t, rec); code != "not_found" {
		t.Fatalf("error code = %q, want not_found", code)
	}
}

func TestMoveFailureMapsUpstreamError(t *testing.T) {
	svc := newStubLeadService(sampleLead("lead-1", "Northwind", domain.RatingCold))
	svc.moveErr = errors.New("dataverse is down")
	handler := NewHandler(svc)

	rec := doRequest(t, handler, http.MethodPost, "/leads/lead-1/move",
		`{"column":"hot"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if code := errorCode(t, rec); code != "upstream_error" {
		t.Fatalf("error code = %q, want upstream_error", code)
	}
}

func TestDeleteLeadReturnsNoContent(t *testing.T) {
	svc := newStubLeadService(sampleLead("lead-1", "Northwind", domain.RatingCold))
	handler := NewHandler(svc)

	rec := doRequest(t, handler, http.MethodDelete, "/leads/lead-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != "lead-1" {
		t.Fatalf("deleted ids = %#v, want [lead-1]", svc.deleted)
	}
}

func TestMethodNotAllowedSetsAllowHeader(t *testing.T) {
	handler := NewHandler(newStubLeadService())

	rec := doRequest(t, handler, http.MethodPut, "/leads", `{}`)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if got := rec.Header().Get("Allow"); got != "GET, POST" {
		t.Fatalf("Allow = %q, want %q", got, "GET, POST")
	}
	if code := errorCode(t, rec); code != "method_not_allowed" {
		t.Fatalf("error code = %q, want method_not_allowed", code)
	}
}

func TestUnknownEndpointReturnsNotFound(t *testing.T) {
	handler := NewHandler(newStubLeadService())

	rec := doRequest(t, handler, http.MethodGet, "/boards", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if code := errorCode(t, rec); code != "not_found" {
		t.Fatalf("error code = %q, want not_found", code)
	}
}
