package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/authhub/authhub/internal/audit"
	"github.com/authhub/authhub/internal/authflow"
	"github.com/authhub/authhub/internal/identity/memdir"
	"github.com/authhub/authhub/internal/session"
	"github.com/authhub/authhub/internal/verify"
	"github.com/authhub/authhub/internal/wire"
)

func newEcho(t *testing.T) *echo.Echo {
	t.Helper()

	dir := memdir.New()
	sessions, err := session.NewManager(nil, "handler-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	verifier := verify.NewService(nil, time.Minute)
	recorder := audit.NewRecorder(nil, dir)
	t.Cleanup(func() {
		recorder.Close()
		verifier.Close()
		sessions.Close()
	})
	flow := authflow.NewService(nil, dir, sessions, verifier, recorder, authflow.CaptchaFlags{})

	e := echo.New()
	NewAuthRPCHandler(flow).Register(e)
	NewUserRPCHandler(dir, recorder).Register(e)
	return e
}

func postJSON(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) wire.ErrorResponse {
	t.Helper()
	var envelope wire.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return envelope
}

func TestUnknownAudienceIsBadRequest(t *testing.T) {
	t.Parallel()

	e := newEcho(t)
	for _, path := range []string{
		wire.PathLoginByCredentials,
		wire.PathLoginByID,
		wire.PathGetUserByAccount,
		wire.PathCreateUserWithPhone,
	} {
		rec := postJSON(e, path, `{"audience":"x","account":"a","password":"p","userId":"u","key":"k","contact":"c"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
			continue
		}
		if envelope := decodeEnvelope(t, rec); envelope.Code != wire.CodeBadRequest {
			t.Errorf("%s: code = %q, want %q", path, envelope.Code, wire.CodeBadRequest)
		}
	}
}

func TestMissingCredentialsIsBadRequest(t *testing.T) {
	t.Parallel()

	e := newEcho(t)
	rec := postJSON(e, wire.PathLoginByCredentials, `{"audience":"b","account":"alice"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCredentialFailureEnvelope(t *testing.T) {
	t.Parallel()

	e := newEcho(t)
	rec := postJSON(e, wire.PathLoginByCredentials, `{"audience":"b","account":"nobody","password":"pw"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if envelope := decodeEnvelope(t, rec); envelope.Code != wire.CodeCredentialInvalid {
		t.Fatalf("code = %q, want %q", envelope.Code, wire.CodeCredentialInvalid)
	}
}

func TestLookupMissReturnsNullBody(t *testing.T) {
	t.Parallel()

	e := newEcho(t)
	rec := postJSON(e, wire.PathGetUserByAccount, `{"audience":"b","key":"nobody"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "null" {
		t.Fatalf("body = %q, want null", body)
	}
}
