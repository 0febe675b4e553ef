package portal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"secretportal/cmd/internal/envfile"
)

// maxBodyBytes caps the submission body. Secrets are short; anything bigger
// is a malformed client.
const maxBodyBytes = 1 << 20

// PageConfig carries the operator-facing presentation options for the form.
type PageConfig struct {
	// DisplayPath is the env file path shown on the page (pre-expansion,
	// as the operator typed it).
	DisplayPath string
	// KeyName, when set, puts the form in single-key mode.
	KeyName      string
	Instructions string
	Link         string
	LinkText     string
}

// Handler serves the portal's three-route HTTP surface: the form on GET /,
// the one accepted submission on POST /save, and 404 for everything else.
type Handler struct {
	log  *slog.Logger
	sess *Session
	page PageConfig

	// onSaved is called once after a submission has been accepted and the
	// response written; the app uses it to schedule shutdown.
	onSaved func(count int)
	// onFatal reports an unrecoverable filesystem failure to the app.
	onFatal func(err error)
}

// NewHandler wires the portal handler. onSaved and onFatal may be nil.
func NewHandler(log *slog.Logger, sess *Session, page PageConfig, onSaved func(count int), onFatal func(err error)) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if onSaved == nil {
		onSaved = func(int) {}
	}
	if onFatal == nil {
		onFatal = func(error) {}
	}
	return &Handler{log: log, sess: sess, page: page, onSaved: onSaved, onFatal: onFatal}
}

// ServeHTTP routes requests. A panic in a handler fails that request with a
// generic 500 and leaves the session usable.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("request.panic", "path", r.URL.Path, "panic", rec)
			writeSaveError(w, http.StatusInternalServerError, "internal error")
		}
	}()

	switch r.Method {
	case http.MethodGet:
		h.handleForm(w, r)
	case http.MethodPost:
		if r.URL.Path != "/save" {
			http.NotFound(w, r)
			return
		}
		h.handleSave(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleForm(w http.ResponseWriter, r *http.Request) {
	provided := r.URL.Query().Get("t")

	if r.URL.Path != "/" || !h.sess.MatchToken(provided) {
		h.log.Warn("form.denied", "path", r.URL.Path)
		writeHTML(w, http.StatusForbidden, "<h3>invalid or expired link</h3>")
		return
	}

	if h.sess.State() == StateConsumed {
		writeHTML(w, http.StatusGone, "<h3>this portal has already been used</h3>")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := renderPage(w, pageData{
		Token:        h.sess.Token(),
		EnvFile:      h.page.DisplayPath,
		KeyName:      h.page.KeyName,
		SingleKey:    h.page.KeyName != "",
		Instructions: instructionsHTML(h.page.Instructions),
		Link:         h.page.Link,
		LinkText:     h.page.LinkText,
	}); err != nil {
		h.log.Error("form.render.fail", "err", err)
	}
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	if !h.sess.MatchToken(r.Header.Get("X-Token")) || h.sess.State() == StateConsumed {
		h.log.Warn("save.denied", "remote", r.RemoteAddr)
		writeSaveError(w, http.StatusForbidden, "invalid or expired")
		return
	}

	secrets, errMsg := decodeSecrets(w, r)
	if errMsg != "" {
		writeSaveError(w, http.StatusBadRequest, errMsg)
		return
	}

	path := h.sess.TargetPath()
	err := h.sess.Consume(func() error {
		existing, err := envfile.Load(path)
		if err != nil {
			return err
		}
		return envfile.Write(path, envfile.Merge(existing, secrets))
	})
	if errors.Is(err, ErrConsumed) {
		writeSaveError(w, http.StatusForbidden, "invalid or expired")
		return
	}
	if err != nil {
		// Filesystem failure is fatal: report to the client, then let the
		// app surface it through the exit status. The session stays active.
		h.log.Error("save.write.fail", "path", path, "err", err)
		writeSaveError(w, http.StatusInternalServerError, "write failed")
		h.onFatal(err)
		return
	}

	count := len(secrets)
	h.log.Info("save.accepted", "count", count, "keys", sortedKeys(secrets), "path", path)
	writeJSON(w, http.StatusOK, saveResponse{OK: true, Count: count})
	h.onSaved(count)
}

// decodeSecrets parses the submission body. The second return value is the
// client-facing validation message, empty on success.
func decodeSecrets(w http.ResponseWriter, r *http.Request) (map[string]string, string) {
	if r.Body == nil {
		return nil, "no secrets provided"
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var secrets map[string]string
	dec := json.NewDecoder(body)
	if err := dec.Decode(&secrets); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			// Valid JSON, wrong shape (array, scalar, non-string values).
			return nil, "no secrets provided"
		}
		return nil, "invalid JSON"
	}
	if len(secrets) == 0 {
		return nil, "no secrets provided"
	}
	return secrets, ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
