package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"petshop/core"
)

var (
	connectionStringPattern = regexp.MustCompile(`(?:https?|mongodb(?:\+srv)?|rediss?)://[^\s"']+`)
	privateIPPattern        = regexp.MustCompile(`\b(?:10|127)(?:\.\d{1,3}){3}(?::\d{1,5})?\b|\b172\.(?:1[6-9]|2[0-9]|3[01])(?:\.\d{1,3}){2}(?::\d{1,5})?\b|\b192\.168(?:\.\d{1,3}){2}(?::\d{1,5})?\b`)
	credentialPattern       = regexp.MustCompile(`(?i)(password|secret|token|apikey|api_key|credential)[:=]\s*["']?[^"'\s]+["']?`)
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// sanitizeErrorMessage removes endpoints, addresses and secrets from messages sent to clients
func sanitizeErrorMessage(message string) string {
	message = connectionStringPattern.ReplaceAllString(message, "[ENDPOINT]")
	message = privateIPPattern.ReplaceAllString(message, "[PRIVATE_IP]")
	message = credentialPattern.ReplaceAllString(message, "$1=[REDACTED]")

	if len(message) > core.MaxErrorMessageLength {
		message = message[:core.MaxErrorMessageLength-3] + "..."
	}
	return message
}

// writeError logs the full error and writes a sanitized JSON error to the client
func writeError(w http.ResponseWriter, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	if logger != nil {
		fields := []interface{}{"status_code", statusCode}
		if err != nil {
			fields = append(fields, "error", err.Error())
		}
		if statusCode >= http.StatusInternalServerError {
			logger.Errorw(message, fields...)
		} else {
			logger.Infow(message, fields...)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Status:  statusCode,
		Error:   http.StatusText(statusCode),
		Message: sanitizeErrorMessage(message),
	})
}

// respondJSON writes a JSON response
func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response already started
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

// requireJSON writes 415 unless the request declares an application/json body
func (a *API) requireJSON(w http.ResponseWriter, r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("Content-Type must be application/json, got %q", contentType), err, a.logger)
		return false
	}
	return true
}

// decodeJSONBody decodes the request body into a generic JSON value
func (a *API) decodeJSONBody(w http.ResponseWriter, r *http.Request) (interface{}, bool) {
	var data interface{}
	err := json.NewDecoder(r.Body).Decode(&data)
	if err == nil {
		return data, true
	}

	var syntaxError *json.SyntaxError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesError):
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", err, a.logger)
	case errors.As(err, &syntaxError):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON syntax at byte offset %d", syntaxError.Offset), err, a.logger)
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "Invalid pet: body of request contained bad or no data", err, a.logger)
	default:
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err, a.logger)
	}
	return nil, false
}

// getRealIP returns the client address used as the rate limit key
func getRealIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// parseBool accepts the truthy spellings clients use in query strings
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1":
		return true
	default:
		return false
	}
}
