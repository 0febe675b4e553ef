package portal

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestHandler(t *testing.T, page PageConfig) (*Handler, *Session, string, *bytes.Buffer) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "secrets.env")
	sess, err := NewSession(path, time.Minute)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	var logBuf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logBuf, nil))

	if page.DisplayPath == "" {
		page.DisplayPath = path
	}
	h := NewHandler(log, sess, page, nil, nil)
	return h, sess, path, &logBuf
}

func doSave(h *Handler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/save", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Token", token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeSaveResponse(t *testing.T, rr *httptest.ResponseRecorder) saveResponse {
	t.Helper()
	var resp saveResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return resp
}

func TestFormServedWithValidToken(t *testing.T) {
	t.Parallel()

	h, sess, _, _ := newTestHandler(t, PageConfig{})

	req := httptest.NewRequest(http.MethodGet, "/?t="+sess.Token(), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("cache-control = %q, want no-store", cc)
	}
	if !strings.Contains(rr.Body.String(), sess.Token()) {
		t.Fatalf("form page does not embed the token")
	}
}

func TestFormDenied(t *testing.T) {
	t.Parallel()

	h, sess, _, _ := newTestHandler(t, PageConfig{})

	cases := []struct {
		name   string
		target string
	}{
		{name: "missing token", target: "/"},
		{name: "wrong token", target: "/?t=wrong"},
		{name: "wrong path", target: "/admin?t=" + sess.Token()},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", rr.Code)
			}
		})
	}
}

func TestFormGoneAfterSubmission(t *testing.T) {
	t.Parallel()

	h, sess, _, _ := newTestHandler(t, PageConfig{})

	if rr := doSave(h, sess.Token(), `{"X":"v"}`); rr.Code != http.StatusOK {
		t.Fatalf("save status = %d, want 200", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/?t="+sess.Token(), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410", rr.Code)
	}
}

func TestSaveHappyPath(t *testing.T) {
	t.Parallel()

	h, sess, path, _ := newTestHandler(t, PageConfig{})

	savedCount := -1
	h.onSaved = func(n int) { savedCount = n }

	rr := doSave(h, sess.Token(), `{"X":"v"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	resp := decodeSaveResponse(t, rr)
	if !resp.OK || resp.Count != 1 {
		t.Fatalf("response = %+v, want ok count=1", resp)
	}
	if savedCount != 1 {
		t.Fatalf("onSaved count = %d, want 1", savedCount)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}
	if string(b) != "X=v\n" {
		t.Fatalf("file = %q, want %q", b, "X=v\n")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestSaveCountMatchesSubmittedKeys(t *testing.T) {
	t.Parallel()

	h, sess, path, _ := newTestHandler(t, PageConfig{})

	// Pre-existing file content should not inflate count.
	if err := os.WriteFile(path, []byte("OLD=1\n"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	rr := doSave(h, sess.Token(), `{"A":"1","B":"2","C":"3"}`)
	resp := decodeSaveResponse(t, rr)
	if !resp.OK || resp.Count != 3 {
		t.Fatalf("response = %+v, want count=3", resp)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}
	if string(b) != "A=1\nB=2\nC=3\nOLD=1\n" {
		t.Fatalf("file = %q", b)
	}
}

func TestSaveWrongTokenLeavesFileUntouched(t *testing.T) {
	t.Parallel()

	h, _, path, _ := newTestHandler(t, PageConfig{})

	rr := doSave(h, "wrong_token", `{"X":"v"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	resp := decodeSaveResponse(t, rr)
	if resp.OK || resp.Error != "invalid or expired" {
		t.Fatalf("response = %+v", resp)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("env file was written on rejected submission")
	}
}

func TestSaveAtMostOnce(t *testing.T) {
	t.Parallel()

	h, sess, _, _ := newTestHandler(t, PageConfig{})

	if rr := doSave(h, sess.Token(), `{"A":"1"}`); rr.Code != http.StatusOK {
		t.Fatalf("first save status = %d", rr.Code)
	}

	// Second attempt with the correct token is still rejected.
	rr := doSave(h, sess.Token(), `{"B":"2"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("second save status = %d, want 403", rr.Code)
	}
	resp := decodeSaveResponse(t, rr)
	if resp.OK || resp.Error != "invalid or expired" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestSaveValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "not json", body: "not json at all", wantErr: "invalid JSON"},
		{name: "truncated", body: `{"A":"1"`, wantErr: "invalid JSON"},
		{name: "empty object", body: `{}`, wantErr: "no secrets provided"},
		{name: "array", body: `["A","1"]`, wantErr: "no secrets provided"},
		{name: "scalar", body: `42`, wantErr: "no secrets provided"},
		{name: "non-string value", body: `{"A":1}`, wantErr: "no secrets provided"},
		{name: "empty body", body: "", wantErr: "invalid JSON"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h, sess, path, _ := newTestHandler(t, PageConfig{})

			rr := doSave(h, sess.Token(), tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			resp := decodeSaveResponse(t, rr)
			if resp.OK || resp.Error != tc.wantErr {
				t.Fatalf("response = %+v, want error %q", resp, tc.wantErr)
			}

			// A rejected submission must not consume the session.
			if sess.State() != StateActive {
				t.Fatalf("session consumed by invalid submission")
			}
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Fatalf("env file written by invalid submission")
			}
		})
	}
}

func TestUnknownPathsAndMethods(t *testing.T) {
	t.Parallel()

	h, sess, _, _ := newTestHandler(t, PageConfig{})

	cases := []struct {
		method string
		target string
	}{
		{method: http.MethodPost, target: "/"},
		{method: http.MethodPost, target: "/other"},
		{method: http.MethodPut, target: "/save"},
		{method: http.MethodDelete, target: "/"},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(`{"A":"1"}`))
		req.Header.Set("X-Token", sess.Token())
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s %s status = %d, want 404", tc.method, tc.target, rr.Code)
		}
	}
}

func TestSingleKeyModePage(t *testing.T) {
	t.Parallel()

	h, sess, _, _ := newTestHandler(t, PageConfig{
		KeyName:      "TEST_API_KEY",
		Instructions: "<strong>Paste the key from the console.</strong>",
		Link:         "https://console.example.com/keys",
		LinkText:     "Open console →",
	})

	req := httptest.NewRequest(http.MethodGet, "/?t="+sess.Token(), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	body := rr.Body.String()
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(body, "TEST_API_KEY") {
		t.Fatalf("single-key page missing key name")
	}
	if !strings.Contains(body, "single-val") {
		t.Fatalf("single-key page missing value input")
	}
	if !strings.Contains(body, "<strong>Paste the key from the console.</strong>") {
		t.Fatalf("instructions HTML was escaped or dropped")
	}
	if !strings.Contains(body, "https://console.example.com/keys") {
		t.Fatalf("link missing from page")
	}
}

func TestWriteFailureIsFatalAndSessionStaysActive(t *testing.T) {
	t.Parallel()

	// Target path sits under a file, so MkdirAll fails.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("seed blocker: %v", err)
	}
	path := filepath.Join(blocker, "secrets.env")

	sess, err := NewSession(path, time.Minute)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	var fatalErr error
	log := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	h := NewHandler(log, sess, PageConfig{DisplayPath: path}, nil, func(err error) { fatalErr = err })

	rr := doSave(h, sess.Token(), `{"A":"1"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	resp := decodeSaveResponse(t, rr)
	if resp.OK || resp.Error != "write failed" {
		t.Fatalf("response = %+v", resp)
	}
	if fatalErr == nil {
		t.Fatalf("onFatal was not invoked")
	}
	if sess.State() != StateActive {
		t.Fatalf("session consumed despite write failure")
	}
}

func TestNoSecretValueInLogsOrResponses(t *testing.T) {
	t.Parallel()

	const (
		secretValue   = "super_secret_value_DEADBEEF_1234567890"
		anotherSecret = "xK9#mP2$vL7@nQ4&wR8"
	)

	h, sess, _, logBuf := newTestHandler(t, PageConfig{})

	// A rejected attempt first, then the accepted submission.
	payload := `{"API_KEY":"` + secretValue + `","DB_PASSWORD":` + mustJSONString(t, anotherSecret) + `}`
	rejected := doSave(h, "wrong_token", payload)
	accepted := doSave(h, sess.Token(), payload)
	if accepted.Code != http.StatusOK {
		t.Fatalf("accepted status = %d", accepted.Code)
	}

	outputs := map[string]string{
		"log":               logBuf.String(),
		"rejected response": rejected.Body.String(),
		"accepted response": accepted.Body.String(),
	}
	for name, out := range outputs {
		for _, v := range []string{secretValue, anotherSecret} {
			if strings.Contains(out, v) {
				t.Fatalf("secret value leaked in %s: %s", name, out)
			}
			if strings.Contains(out, url.QueryEscape(v)) {
				t.Fatalf("percent-encoded secret value leaked in %s: %s", name, out)
			}
		}
	}

	// Key names are allowed to appear in the log.
	if !strings.Contains(logBuf.String(), "API_KEY") {
		t.Fatalf("expected key name in log output")
	}
}

func mustJSONString(t *testing.T, s string) string {
	t.Helper()
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
