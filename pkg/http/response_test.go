package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestContext(t *testing.T, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestSuccessResponseEnvelope(t *testing.T) {
	c, rec := newTestContext(t, "")
	if err := SuccessResponse(c, map[string]string{"state": "running"}); err != nil {
		t.Fatalf("SuccessResponse: %v", err)
	}

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != http.StatusOK || resp.Message != "OK" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}

func TestAppErrorResponseKeepsStatus(t *testing.T) {
	c, rec := newTestContext(t, "")
	if err := AppErrorResponse(c, NotFoundError("no such strategy")); err != nil {
		t.Fatalf("AppErrorResponse: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("transport status = %d, want 200", rec.Code)
	}

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != http.StatusNotFound {
		t.Fatalf("envelope status = %d, want 404", resp.Status)
	}
}

func TestAppErrorResponseMasksUnknownErrors(t *testing.T) {
	c, rec := newTestContext(t, "")
	if err := AppErrorResponse(c, errorString("connection refused")); err != nil {
		t.Fatalf("AppErrorResponse: %v", err)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("internal error detail leaked: %s", rec.Body.String())
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }

func TestReadAndValidateRequest(t *testing.T) {
	type promoteRequest struct {
		Strategy string  `json:"strategy" validate:"required"`
		Capital  float64 `json:"capital" validate:"gte=0"`
	}

	c, _ := newTestContext(t, `{"strategy":"momo-1","capital":100}`)
	var req promoteRequest
	if verr := ReadAndValidateRequest(c, &req); verr != nil {
		t.Fatalf("valid request rejected: %v", verr)
	}
	if req.Strategy != "momo-1" {
		t.Fatalf("strategy = %q", req.Strategy)
	}

	c, _ = newTestContext(t, `{"capital":-1}`)
	verr := ReadAndValidateRequest(c, &promoteRequest{})
	errs, ok := verr.([]ValidationError)
	if !ok || len(errs) != 2 {
		t.Fatalf("expected two field errors, got %v", verr)
	}
	for _, fe := range errs {
		if fe.Code != "ERR_REQUIRED" && fe.Code != "ERR_GTE" {
			t.Fatalf("unexpected code %q", fe.Code)
		}
	}
}
