package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/skypro1111/tcp-http-server/internal/handler"
	"github.com/skypro1111/tcp-http-server/internal/multipart"
	"github.com/skypro1111/tcp-http-server/internal/protocol"
	"github.com/skypro1111/tcp-http-server/internal/session"
)

const visitsKey = "visits"

// routes is the handler table served in front of the static files.
type routes struct {
	logger     *slog.Logger
	sessions   *session.Store
	cookieName string
}

func newRoutes(logger *slog.Logger, sessions *session.Store, cookieName string) *routes {
	return &routes{
		logger:     logger,
		sessions:   sessions,
		cookieName: cookieName,
	}
}

func (r *routes) handlers() []handler.Handler {
	return []handler.Handler{
		handler.NewRoute("/health").Get(r.health),
		handler.NewRoute("/session").Get(r.session),
		handler.NewRoute("/session/logout").Post(r.logout),
		handler.NewRoute("/upload").Post(r.upload),
		handler.NewRoute("/form").Post(r.form),
	}
}

type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
}

func (r *routes) health(*protocol.Request) (*protocol.Response, error) {
	return handler.JSON(200, healthResponse{
		Status:         "ok",
		ActiveSessions: r.sessions.Len(),
	})
}

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	New       bool      `json:"new"`
	Visits    int       `json:"visits"`
	CreatedAt time.Time `json:"created_at"`
}

// session counts visits in the caller's session, creating one when the
// cookie is missing or names an expired session.
func (r *routes) session(req *protocol.Request) (*protocol.Response, error) {
	var (
		sess    *session.Session
		created bool
	)
	if id, ok := req.Cookie(r.cookieName); ok {
		sess, _ = r.sessions.Get(id)
	}
	if sess == nil {
		var err error
		sess, err = r.sessions.Create()
		if err != nil {
			return nil, err
		}
		created = true
	}

	visits := sess.Update(visitsKey, func(old any, ok bool) any {
		if n, isInt := old.(int); ok && isInt {
			return n + 1
		}
		return 1
	}).(int)

	maxAge := int(r.sessions.Timeout() / time.Second)
	return jsonResponse(200, sessionResponse{
		SessionID: sess.ID(),
		New:       created,
		Visits:    visits,
		CreatedAt: sess.CreatedAt().UTC(),
	}, protocol.Cookie{Name: r.cookieName, Value: sess.ID(), MaxAge: maxAge, HTTPOnly: true})
}

type logoutResponse struct {
	Invalidated bool `json:"invalidated"`
}

func (r *routes) logout(req *protocol.Request) (*protocol.Response, error) {
	var invalidated bool
	if id, ok := req.Cookie(r.cookieName); ok {
		invalidated = r.sessions.Invalidate(id)
	}
	return jsonResponse(200, logoutResponse{Invalidated: invalidated},
		protocol.Cookie{Name: r.cookieName, Value: "", MaxAge: 0, HTTPOnly: true})
}

type uploadedFile struct {
	Field       string `json:"field"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Extension   string `json:"extension"`
	Size        int    `json:"size"`
}

type uploadResponse struct {
	Fields map[string]string `json:"fields"`
	Files  []uploadedFile    `json:"files"`
}

func (r *routes) upload(req *protocol.Request) (*protocol.Response, error) {
	form, err := multipart.Parse(req)
	switch {
	case errors.Is(err, multipart.ErrNotMultipart):
		return handler.Text(415, "expected "+protocol.MimeMultipartForm), nil
	case errors.Is(err, multipart.ErrMissingBoundary):
		return handler.Text(400, "multipart boundary missing"), nil
	case err != nil:
		return nil, fmt.Errorf("failed to parse upload: %w", err)
	}

	files := make([]uploadedFile, 0, len(form.Files))
	for field, f := range form.Files {
		files = append(files, uploadedFile{
			Field:       field,
			FileName:    f.FileName,
			ContentType: f.ContentType,
			Extension:   f.Extension,
			Size:        len(f.Content),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Field < files[j].Field })

	r.logger.Info("Upload received",
		slog.Int("fields", len(form.Fields)),
		slog.Int("files", len(files)),
	)

	return handler.JSON(200, uploadResponse{Fields: form.Fields, Files: files})
}

func (r *routes) form(req *protocol.Request) (*protocol.Response, error) {
	mediaType, _, _ := strings.Cut(req.ContentType(), ";")
	if !strings.EqualFold(strings.TrimSpace(mediaType), "application/x-www-form-urlencoded") {
		return handler.Text(415, "expected application/x-www-form-urlencoded"), nil
	}

	body, _ := req.Body()
	return handler.JSON(200, protocol.ParseURLEncoded(body))
}

// jsonResponse encodes v and attaches cookies.
func jsonResponse(status int, v any, cookies ...protocol.Cookie) (*protocol.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response body: %w", err)
	}

	b := protocol.NewResponseBuilder().
		Status(status).
		Header(protocol.HeaderContentType, protocol.MimeJSON).
		Header(protocol.HeaderContentLength, strconv.Itoa(len(body))).
		Body(body)
	for _, c := range cookies {
		b.Cookie(c.Name, c.Value, c.MaxAge, c.HTTPOnly)
	}
	return b.Build(), nil
}
