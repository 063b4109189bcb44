package server

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/provisioning"
)

const (
	contentTypeJSON = "application/json"
	maxAPIBody      = 1 << 16
)

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes {"error": message}.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// provisioningKey reads the caller's key from X-Provisioning-Key or a bearer token.
func provisioningKey(r *http.Request) string {
	if key := r.Header.Get(headerKey); key != "" {
		return key
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// RequireProvisioningKey rejects API calls without the configured provisioning key.
func (s *Server) RequireProvisioningKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		want := s.config.GetProvisioningKey()
		got := provisioningKey(r)
		if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
			writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type workerResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// CreateWorkerHandler provisions a simplified worker account (POST /api/workers).
func (s *Server) CreateWorkerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Provisioning == nil {
			writeJSONError(w, "Provisioning is not configured", http.StatusServiceUnavailable)
			return
		}

		var req provisioning.WorkerRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxAPIBody)).Decode(&req); err != nil {
			writeJSONError(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}

		result, err := s.deps.Provisioning.CreateWorker(r.Context(), req)
		if err != nil {
			status, message := workerError(err)
			logger(r).Err(err).Str("org", req.OrgID).Int("status", status).Msg("[server CreateWorker] provisioning failed")
			writeJSONError(w, message, status)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, workerResponse{
			Success: true,
			UserID:  result.UserID,
			Email:   result.Email,
			Message: result.Message,
		})
	}
}

func workerError(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrInvalidRequest):
		return http.StatusBadRequest, "Missing required fields: slug, pin, firstName, lastName, orgId"
	case errors.Is(err, provisioning.ErrProfileNotFound):
		return http.StatusInternalServerError, provisioning.ErrProfileNotFound.Error()
	case errors.Is(err, provisioning.ErrCreateProfile):
		return http.StatusInternalServerError, provisioning.ErrCreateProfile.Error()
	case errors.Is(err, provisioning.ErrCreateAccount):
		return http.StatusInternalServerError, provisioning.ErrCreateAccount.Error()
	}
	return http.StatusInternalServerError, "Internal server error"
}

// TranslateHandler translates UI text (GET /api/translate). Failures yield an empty result.
func (s *Server) TranslateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		text := q.Get(paramText)
		if strings.TrimSpace(text) == "" {
			writeJSONError(w, "text is required", http.StatusBadRequest)
			return
		}
		translated := ""
		if s.deps.Translator != nil {
			translated = s.deps.Translator.Translate(r.Context(), text, q.Get(paramFrom), q.Get(paramTo))
		}
		writeJSON(w, http.StatusOK, map[string]string{"translatedText": translated})
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
