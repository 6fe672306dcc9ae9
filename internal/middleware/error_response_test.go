package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/bookchat/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat はerrorとcodeを含むJSONが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidJSONError())

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["error"] != "Invalid JSON" {
		t.Errorf("error = %q, want %q", body["error"], "Invalid JSON")
	}
	if body["code"] != model.ErrCodeInvalidJSON {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeInvalidJSON)
	}
}

func TestWriteErrorResponse_DifferentStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    *model.APIError
	}{
		{"not found", http.StatusNotFound, model.NewNotFoundError()},
		{"missing fields", http.StatusBadRequest, model.NewMissingFieldsError("content")},
		{"rate limited", http.StatusTooManyRequests, model.NewRateLimitedError()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.status, tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Error != tt.err.Message || body.Code != tt.err.Code {
				t.Errorf("body = %+v, want error=%q code=%q", body, tt.err.Message, tt.err.Code)
			}
		})
	}
}

// 500のメッセージはそのままクライアントに返される
func TestWriteInternalServerError_ExposesMessage(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w, "database is locked")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error != "database is locked" {
		t.Errorf("error = %q", body.Error)
	}
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
}
