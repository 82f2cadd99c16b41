// Package api exposes the management HTTP endpoints for certificate
// records and renewal triggers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stratohost/certd/internal/certificate"
	"github.com/stratohost/certd/internal/repository"
)

// Error codes for certificate operations
const (
	CodeCertificateNotFound = "CERTIFICATE_NOT_FOUND"
	CodeValidationError     = "VALIDATION_ERROR"
	CodeDispatcherClosed    = "DISPATCHER_CLOSED"
	CodeArchiveDisabled     = "ARCHIVE_DISABLED"
	CodeArtifactNotFound    = "ARTIFACT_NOT_FOUND"
	CodeInternalError       = "INTERNAL_ERROR"
)

// Restorer fetches one archived artifact and returns its decrypted
// contents. Implemented by the archive service.
type Restorer interface {
	Restore(ctx context.Context, domain, stamp, name string) ([]byte, error)
}

// archiveFiles are the artifact names the archive stores per snapshot.
var archiveFiles = map[string]bool{
	"cert.pem":      true,
	"chain.pem":     true,
	"fullchain.pem": true,
	"privkey.pem":   true,
}

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CertificateResponse represents a certificate record in API responses
type CertificateResponse struct {
	ID        string     `json:"id"`
	Domain    string     `json:"domain"`
	Attempts  int        `json:"attempts"`
	Log       string     `json:"log,omitempty"`
	IssueDate *time.Time `json:"issue_date,omitempty"`
	RenewDate time.Time  `json:"renew_date"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RenewRequest represents the renewal trigger request body
type RenewRequest struct {
	// Force skips the eligibility and freshness checks
	Force bool `json:"force"`
}

// RenewResponse represents the renewal trigger response
type RenewResponse struct {
	Message string `json:"message"`
	Domain  string `json:"domain"`
	Forced  bool   `json:"forced"`
}

// CertificateHandler handles HTTP requests for certificate management
type CertificateHandler struct {
	repo       repository.CertificateRepository
	dispatcher *certificate.Dispatcher
	restorer   Restorer
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewCertificateHandler creates a new CertificateHandler instance. The
// restorer is nil when archiving is disabled.
func NewCertificateHandler(repo repository.CertificateRepository, dispatcher *certificate.Dispatcher, restorer Restorer, logger *slog.Logger) *CertificateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CertificateHandler{
		repo:       repo,
		dispatcher: dispatcher,
		restorer:   restorer,
		validate:   validator.New(),
		logger:     logger,
	}
}

// Routes mounts the certificate endpoints on a router
func (h *CertificateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{domain}", h.GetCertificate)
	r.Post("/{domain}/renew", h.TriggerRenewal)
	r.Get("/{domain}/archive/{stamp}/{file}", h.RestoreArtifact)
	return r
}

// GetCertificate handles GET /api/v1/certificates/{domain}
func (h *CertificateHandler) GetCertificate(w http.ResponseWriter, r *http.Request) {
	domain, ok := h.domainParam(w, r)
	if !ok {
		return
	}

	cert, err := h.repo.Load(r.Context(), domain)
	if err != nil {
		if errors.Is(err, repository.ErrCertificateNotFound) {
			h.writeError(w, http.StatusNotFound, CodeCertificateNotFound, "No certificate record for this domain")
			return
		}
		h.logger.Error("Failed to load certificate record", "error", err, "domain", domain)
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to load certificate record")
		return
	}

	h.writeJSON(w, http.StatusOK, toCertificateResponse(cert))
}

// TriggerRenewal handles POST /api/v1/certificates/{domain}/renew. The pass
// runs in the background; the response only acknowledges the trigger.
func (h *CertificateHandler) TriggerRenewal(w http.ResponseWriter, r *http.Request) {
	domain, ok := h.domainParam(w, r)
	if !ok {
		return
	}

	var req RenewRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
			return
		}
	}

	if err := h.dispatcher.Enqueue(r.Context(), domain, req.Force); err != nil {
		if errors.Is(err, certificate.ErrDispatcherClosed) {
			h.writeError(w, http.StatusServiceUnavailable, CodeDispatcherClosed, "Service is shutting down")
			return
		}
		h.logger.Error("Failed to enqueue certificate pass", "error", err, "domain", domain)
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to schedule renewal")
		return
	}

	h.writeJSON(w, http.StatusAccepted, RenewResponse{
		Message: "Certificate pass scheduled",
		Domain:  domain,
		Forced:  req.Force,
	})
}

// RestoreArtifact handles GET /api/v1/certificates/{domain}/archive/{stamp}/{file}.
// It fetches one archived snapshot file and streams the decrypted contents.
func (h *CertificateHandler) RestoreArtifact(w http.ResponseWriter, r *http.Request) {
	domain, ok := h.domainParam(w, r)
	if !ok {
		return
	}

	if h.restorer == nil {
		h.writeError(w, http.StatusNotFound, CodeArchiveDisabled, "Archiving is not enabled")
		return
	}

	file := chi.URLParam(r, "file")
	if !archiveFiles[file] {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Unknown artifact file")
		return
	}
	stamp := chi.URLParam(r, "stamp")

	data, err := h.restorer.Restore(r.Context(), domain, stamp, file)
	if err != nil {
		h.logger.Error("Failed to restore archived artifact",
			"error", err, "domain", domain, "stamp", stamp, "file", file)
		h.writeError(w, http.StatusNotFound, CodeArtifactNotFound, "Archived artifact is unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// domainParam extracts and validates the domain URL parameter.
func (h *CertificateHandler) domainParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	domain := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "domain")))
	if err := h.validate.Var(domain, "required,hostname_rfc1123"); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid domain name")
		return "", false
	}
	return domain, true
}

func toCertificateResponse(cert *repository.Certificate) *CertificateResponse {
	return &CertificateResponse{
		ID:        cert.ID.String(),
		Domain:    cert.Domain,
		Attempts:  cert.Attempts,
		Log:       cert.Log,
		IssueDate: cert.IssueDate,
		RenewDate: cert.RenewDate,
		UpdatedAt: cert.UpdatedAt,
	}
}

// writeJSON writes a success response in the standard envelope
func (h *CertificateHandler) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writeError writes an error response in the standard envelope
func (h *CertificateHandler) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	})
}
