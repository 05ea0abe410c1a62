// Package rest serves the browser-facing JSON API and the operational
// endpoints over net/http.
package rest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/application/dto"
	"github.com/bibbank/origination/internal/application/usecase"
	"github.com/bibbank/origination/internal/domain/apperr"
)

const maxJSONBody = 1 << 20

// APIHandler exposes the origination use cases under /api.
type APIHandler struct {
	svc       usecase.Services
	uploadDir string
	logger    *slog.Logger
}

// NewAPIHandler creates the handler. Uploaded salary documents are kept in
// uploadDir.
func NewAPIHandler(svc usecase.Services, uploadDir string, logger *slog.Logger) *APIHandler {
	return &APIHandler{svc: svc, uploadDir: uploadDir, logger: logger}
}

// RegisterRoutes attaches the API routes to the given mux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.chat)
	mux.HandleFunc("POST /api/verify-kyc", h.verifyKYC)
	mux.HandleFunc("POST /api/underwrite", h.underwrite)
	mux.HandleFunc("POST /api/upload-salary", h.uploadSalary)
	mux.HandleFunc("GET /api/offers/{customerId}", h.offers)
	mux.HandleFunc("GET /api/credit-score/{customerId}", h.creditScore)
	mux.HandleFunc("POST /api/sanction", h.generateSanction)
	mux.HandleFunc("GET /api/sanction/{sanctionId}", h.getSanction)
	mux.HandleFunc("GET /api/sanction/{sanctionId}/download", h.downloadSanction)
	mux.HandleFunc("GET /api/admin/sessions", h.listSessions)
	mux.HandleFunc("GET /api/admin/sessions/{sessionId}", h.getSession)
	mux.HandleFunc("GET /api/admin/sanctions", h.listSanctions)
}

type chatBody struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func (h *APIHandler) chat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if !h.decode(w, r, &body) {
		return
	}
	if body.SessionID == "" || strings.TrimSpace(body.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "sessionId and message are required"})
		return
	}
	resp, err := h.svc.Chat.Execute(r.Context(), dto.ChatRequest{SessionID: body.SessionID, Message: body.Message})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type verifyKYCBody struct {
	SessionID string `json:"sessionId"`
	Phone     string `json:"phone"`
}

func (h *APIHandler) verifyKYC(w http.ResponseWriter, r *http.Request) {
	var body verifyKYCBody
	if !h.decode(w, r, &body) {
		return
	}
	if body.SessionID == "" || body.Phone == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "sessionId and phone are required"})
		return
	}
	resp, err := h.svc.VerifyKYC.Execute(r.Context(), dto.VerifyKYCRequest{SessionID: body.SessionID, Phone: body.Phone})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type underwriteBody struct {
	SessionID     string              `json:"sessionId"`
	MonthlySalary decimal.NullDecimal `json:"monthlySalary"`
}

func (h *APIHandler) underwrite(w http.ResponseWriter, r *http.Request) {
	var body underwriteBody
	if !h.decode(w, r, &body) {
		return
	}
	resp, err := h.svc.RunUnderwriting.Execute(r.Context(), dto.RunUnderwritingRequest{
		SessionID:     body.SessionID,
		MonthlySalary: body.MonthlySalary,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type sessionBody struct {
	SessionID string `json:"sessionId"`
}

func (h *APIHandler) generateSanction(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if !h.decode(w, r, &body) {
		return
	}
	resp, err := h.svc.GenerateSanction.Execute(r.Context(), dto.GenerateSanctionRequest{SessionID: body.SessionID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// uploadSalary accepts a multipart form with fields sessionId, salary and
// file. The document is validated before it touches the disk.
func (h *APIHandler) uploadSalary(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, usecase.MaxSalaryDocumentBytes+maxJSONBody)
	if err := r.ParseMultipartForm(usecase.MaxSalaryDocumentBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	sessionID := r.FormValue("sessionId")
	salaryRaw := r.FormValue("salary")
	if sessionID == "" || salaryRaw == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "sessionId and salary are required"})
		return
	}
	salary, err := decimal.NewFromString(salaryRaw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "salary must be a number"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "File is required"})
		return
	}
	defer file.Close()

	if err := usecase.ValidateSalaryDocument(header.Filename, header.Size); err != nil {
		h.writeError(w, r, err)
		return
	}
	stored, err := h.storeUpload(file, header.Filename)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.svc.UploadSalary.Execute(r.Context(), dto.UploadSalaryRequest{
		SessionID:     sessionID,
		MonthlySalary: salary,
		Filename:      stored,
		ContentType:   header.Header.Get("Content-Type"),
		SizeBytes:     header.Size,
	})
	if err != nil {
		_ = os.Remove(filepath.Join(h.uploadDir, stored))
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// storeUpload writes src under a generated name that keeps the original
// extension and returns that name.
func (h *APIHandler) storeUpload(src io.Reader, original string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generate upload name: %w", err)
	}
	name := fmt.Sprintf("salary-%d-%s%s",
		time.Now().UnixMilli(), hex.EncodeToString(suffix), strings.ToLower(filepath.Ext(original)))

	dst, err := os.OpenFile(filepath.Join(h.uploadDir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return name, nil
}

func (h *APIHandler) offers(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.GetOffers.Execute(r.Context(), dto.GetOffersRequest{CustomerID: r.PathValue("customerId")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) creditScore(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.GetCreditScore.Execute(r.Context(), dto.GetOffersRequest{CustomerID: r.PathValue("customerId")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) getSanction(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.GetSanction.Execute(r.Context(), dto.GetSanctionRequest{SanctionID: r.PathValue("sanctionId")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) downloadSanction(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.DownloadSanction.Execute(r.Context(), dto.GetSanctionRequest{SanctionID: r.PathValue("sanctionId")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", resp.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", resp.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Content)
}

func (h *APIHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.ListSessions.Execute(r.Context(), dto.ListRequest{Limit: queryLimit(r)})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) getSession(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.GetSession.Execute(r.Context(), dto.GetSessionRequest{SessionID: r.PathValue("sessionId")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) listSanctions(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.ListSanctions.Execute(r.Context(), dto.ListRequest{Limit: queryLimit(r)})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

type errorBody struct {
	Error string `json:"error"`
	Reply string `json:"reply,omitempty"`
}

// writeError maps an application error onto an HTTP status. The reply field
// carries text the chat client can show the customer as is.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := errorBody{Reply: apperr.UserMessage(err)}
	switch code {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict:
		body.Error = err.Error()
	default:
		body.Error = http.StatusText(code)
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"kind", apperr.Kind(err),
			"error", err,
		)
	}
	writeJSON(w, code, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrVersionConflict), errors.Is(err, apperr.ErrInvariantViolation):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrExternalService), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}
