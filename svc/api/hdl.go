package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/unicode/norm"

	"pastry/cfg"
	"pastry/metrics"
	"pastry/pkg/domain"
	"pastry/svc/svc"
	"pastry/svc/util"
)

const sessionCookie = "viewer_session"

type Hdl struct {
	paste *svc.Paste
	cfg   *cfg.Cfg
}

type PasteReq struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Syntax    string `json:"syntax,omitempty"`
	Status    int    `json:"status"`
	Expire    string `json:"expire,omitempty"`
	Password  string `json:"password,omitempty"`
	Encrypted bool   `json:"encrypted,omitempty"`
}

type ReportReq struct {
	Reason string `json:"reason"`
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues("create").Observe(time.Since(start).Seconds())
	}()

	req, ok := h.decodePasteReq(w, r)
	if !ok {
		return
	}
	params := domain.CreateParams{
		Title:     req.Title,
		Content:   sanitizeContent(req.Content),
		Syntax:    req.Syntax,
		Status:    domain.Status(req.Status),
		Expire:    req.Expire,
		Password:  req.Password,
		Encrypted: req.Encrypted,
	}
	result, err := h.paste.Create(r.Context(), requesterFrom(r), params)
	if err != nil {
		log.Warn().Err(err).
			Str("content", util.RedactPasteContent(req.Content)).
			Msg("create failed")
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("slug", result.Slug).
		Bool("password_protected", req.Password != "").
		Msg("paste created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues("read").Observe(time.Since(start).Seconds())
	}()

	slug := chi.URLParam(r, "slug")
	password := r.URL.Query().Get("password")
	if password == "" {
		password = r.Header.Get("X-Paste-Password")
	}
	sessionID := h.sessionID(w, r)

	proj, err := h.paste.Read(r.Context(), requesterFrom(r), slug, password, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("slug", slug).Msg("read failed")
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("slug", slug).
		Str("client_ip", util.RedactIP(r.RemoteAddr)).
		Int64("views", proj.Views).
		Msg("paste retrieved")
	json.NewEncoder(w).Encode(proj)
}

func (h *Hdl) UpdatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	slug := chi.URLParam(r, "slug")

	req, ok := h.decodePasteReq(w, r)
	if !ok {
		return
	}
	params := domain.UpdateParams{
		Title:     req.Title,
		Content:   sanitizeContent(req.Content),
		Syntax:    req.Syntax,
		Status:    domain.Status(req.Status),
		Password:  req.Password,
		Encrypted: req.Encrypted,
	}
	result, err := h.paste.Update(r.Context(), requesterFrom(r), slug, params)
	if err != nil {
		log.Warn().Err(err).Str("slug", slug).
			Str("content", util.RedactPasteContent(req.Content)).
			Msg("update failed")
		writeErr(w, err, requestID)
		return
	}
	json.NewEncoder(w).Encode(result)
}

func (h *Hdl) DeletePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	slug := chi.URLParam(r, "slug")

	if err := h.paste.Delete(r.Context(), requesterFrom(r), slug); err != nil {
		log.Warn().Err(err).Str("slug", slug).Msg("delete failed")
		writeErr(w, err, requestID)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

func (h *Hdl) ReportPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	slug := chi.URLParam(r, "slug")

	var req ReportReq
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	if err := h.paste.Report(r.Context(), requesterFrom(r), slug, req.Reason); err != nil {
		log.Warn().Err(err).Str("slug", slug).Msg("report failed")
		writeErr(w, err, requestID)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"status": "reported"})
}

func (h *Hdl) ListPastes(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	sums, err := h.paste.Index(r.Context(), pageParam(r))
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	json.NewEncoder(w).Encode(sums)
}

func (h *Hdl) SearchPastes(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	sums, err := h.paste.Search(r.Context(), r.URL.Query().Get("q"), pageParam(r))
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	json.NewEncoder(w).Encode(sums)
}

func (h *Hdl) ArchiveSyntaxes(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	syntaxes, err := h.paste.ArchiveSyntaxes(r.Context())
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	if syntaxes == nil {
		syntaxes = []string{}
	}
	json.NewEncoder(w).Encode(syntaxes)
}

func (h *Hdl) ArchivePastes(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	syntax := chi.URLParam(r, "syntax")
	sums, err := h.paste.Archive(r.Context(), syntax, pageParam(r))
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	json.NewEncoder(w).Encode(sums)
}

func (h *Hdl) TrendingPastes(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	sums, err := h.paste.Trending(r.Context(), r.URL.Query().Get("range"))
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	json.NewEncoder(w).Encode(sums)
}

func (h *Hdl) decodePasteReq(w http.ResponseWriter, r *http.Request) (PasteReq, bool) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	var req PasteReq

	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().
			Str("content_type", contentType).
			Str("request_id", requestID).
			Msg("invalid Content-Type header")
		w.WriteHeader(http.StatusUnsupportedMediaType)
		json.NewEncoder(w).Encode(map[string]string{
			"error":      "expected Content-Type: application/json",
			"request_id": requestID,
		})
		return req, false
	}

	// Twice the content cap leaves room for the JSON envelope.
	limit := h.cfg.MaxContentSizeKB * 1024 * 2
	if clHeader := r.Header.Get("Content-Length"); clHeader != "" {
		cl, err := strconv.ParseInt(clHeader, 10, 64)
		if err != nil || cl < 0 {
			log.Warn().Str("content_length", clHeader).Msg("invalid Content-Length")
			writeErr(w, domain.ErrInvalidRequest, requestID)
			return req, false
		}
		if cl > limit {
			log.Warn().Int64("content_length", cl).Msg("Content-Length exceeds maximum")
			writeErr(w, domain.ErrContentTooLarge, requestID)
			return req, false
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request body")
		}
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return req, false
	}
	return req, true
}

// sessionID returns the viewer session cookie, minting one when the
// client has none yet.
func (h *Hdl) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := util.NewRequestID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((24 * time.Hour).Seconds()),
	})
	return id
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.StatusCode(err)
	resp := domain.ToResp(err)
	if statusCode >= 500 {
		resp = domain.ToResp(domain.ErrInternal)
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error")
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(struct {
		domain.ErrResp
		RequestID string `json:"request_id"`
	}{ErrResp: resp, RequestID: requestID})
}

// sanitizeContent normalizes to NFC and strips control characters
// other than newline, carriage return and tab.
func sanitizeContent(s string) string {
	s = norm.NFC.String(s)
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
