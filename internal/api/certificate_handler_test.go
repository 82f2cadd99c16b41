package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stratohost/certd/internal/certificate"
	"github.com/stratohost/certd/internal/repository"
)

type stubRepo struct {
	cert  *repository.Certificate
	err   error
	saved []*repository.Certificate
}

func (s *stubRepo) Load(context.Context, string) (*repository.Certificate, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.cert == nil {
		return nil, repository.ErrCertificateNotFound
	}
	return s.cert, nil
}

func (s *stubRepo) Save(_ context.Context, cert *repository.Certificate) (*repository.Certificate, error) {
	saved := *cert
	if saved.ID == uuid.Nil {
		saved.ID = uuid.New()
	}
	s.saved = append(s.saved, &saved)
	return &saved, nil
}

type stubValidator struct{}

func (stubValidator) Validate(context.Context, string, bool) error { return nil }

type stubRenewal struct{}

func (stubRenewal) IsRenewalRequired(string) (bool, error) { return false, nil }
func (stubRenewal) CertificateExpiry(string) (time.Time, error) {
	return time.Now().Add(90 * 24 * time.Hour), nil
}

type stubIssuer struct{}

func (stubIssuer) Issue(context.Context, string, string, string) (*certificate.IssueResult, error) {
	return &certificate.IssueResult{}, nil
}

type stubDeployer struct{}

func (stubDeployer) Deploy(string, string, *certificate.IssueResult) error { return nil }

type stubNotifier struct{}

func (stubNotifier) OnFailure(context.Context, string, error, *repository.Certificate) {}

type stubPropagator struct{}

func (stubPropagator) Propagate(context.Context, uuid.UUID, string) error { return nil }

type stubRestorer struct {
	data map[string][]byte
	err  error
}

func (s *stubRestorer) Restore(_ context.Context, domain, stamp, name string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.data[domain+"/"+stamp+"/"+name], nil
}

func newTestHandler(repo repository.CertificateRepository) *CertificateHandler {
	return newTestHandlerWithRestorer(repo, nil)
}

func newTestHandlerWithRestorer(repo repository.CertificateRepository, restorer Restorer) *CertificateHandler {
	orchestrator := certificate.NewOrchestrator(certificate.OrchestratorConfig{
		Repository:    repo,
		Validator:     stubValidator{},
		Renewal:       stubRenewal{},
		Issuer:        stubIssuer{},
		Deployer:      stubDeployer{},
		Notifier:      stubNotifier{},
		FanOut:        stubPropagator{},
		SecurityEmail: "security@platform.com",
	})
	dispatcher := certificate.NewDispatcher(orchestrator, 2, nil)
	return NewCertificateHandler(repo, dispatcher, restorer, nil)
}

func serve(t *testing.T, h *CertificateHandler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *strings.Reader
	if body == "" {
		reqBody = strings.NewReader("")
	} else {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	return resp
}

func TestGetCertificateReturnsRecord(t *testing.T) {
	issueDate := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := &stubRepo{cert: &repository.Certificate{
		ID:        uuid.New(),
		Domain:    "app.customer.com",
		Attempts:  0,
		IssueDate: &issueDate,
		RenewDate: issueDate.Add(60 * 24 * time.Hour),
	}}
	h := newTestHandler(repo)

	rec := serve(t, h, http.MethodGet, "/app.customer.com", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatal("success = false")
	}
	data, _ := resp.Data.(map[string]interface{})
	if data["domain"] != "app.customer.com" {
		t.Errorf("domain = %v", data["domain"])
	}
}

func TestGetCertificateNotFound(t *testing.T) {
	h := newTestHandler(&stubRepo{})

	rec := serve(t, h, http.MethodGet, "/gone.customer.com", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != CodeCertificateNotFound {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestGetCertificateRejectsInvalidDomain(t *testing.T) {
	h := newTestHandler(&stubRepo{})

	rec := serve(t, h, http.MethodGet, "/bad_!domain", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTriggerRenewalIsAccepted(t *testing.T) {
	h := newTestHandler(&stubRepo{})

	rec := serve(t, h, http.MethodPost, "/app.customer.com/renew", `{"force": true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	data, _ := resp.Data.(map[string]interface{})
	if data["forced"] != true {
		t.Errorf("forced = %v, want true", data["forced"])
	}
}

func TestTriggerRenewalWithoutBodyDefaultsToUnforced(t *testing.T) {
	h := newTestHandler(&stubRepo{})

	rec := serve(t, h, http.MethodPost, "/app.customer.com/renew", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data, _ := resp.Data.(map[string]interface{})
	if data["forced"] != false {
		t.Errorf("forced = %v, want false", data["forced"])
	}
}

func TestTriggerRenewalRejectsMalformedBody(t *testing.T) {
	h := newTestHandler(&stubRepo{})

	rec := serve(t, h, http.MethodPost, "/app.customer.com/renew", `{"force": "maybe"`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRestoreArtifactStreamsDecryptedContents(t *testing.T) {
	restorer := &stubRestorer{data: map[string][]byte{
		"app.customer.com/20260501T100000Z/privkey.pem": []byte("KEY MATERIAL"),
	}}
	h := newTestHandlerWithRestorer(&stubRepo{}, restorer)

	rec := serve(t, h, http.MethodGet, "/app.customer.com/archive/20260501T100000Z/privkey.pem", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if rec.Body.String() != "KEY MATERIAL" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestRestoreArtifactWhenArchiveDisabled(t *testing.T) {
	h := newTestHandler(&stubRepo{})

	rec := serve(t, h, http.MethodGet, "/app.customer.com/archive/20260501T100000Z/cert.pem", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != CodeArchiveDisabled {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestRestoreArtifactRejectsUnknownFile(t *testing.T) {
	h := newTestHandlerWithRestorer(&stubRepo{}, &stubRestorer{})

	rec := serve(t, h, http.MethodGet, "/app.customer.com/archive/20260501T100000Z/passwd", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != CodeValidationError {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestRestoreArtifactFetchFailure(t *testing.T) {
	h := newTestHandlerWithRestorer(&stubRepo{}, &stubRestorer{err: errors.New("object missing")})

	rec := serve(t, h, http.MethodGet, "/app.customer.com/archive/20260501T100000Z/cert.pem", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != CodeArtifactNotFound {
		t.Errorf("error = %+v", resp.Error)
	}
}
