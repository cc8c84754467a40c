package handler

import (
	"fmt"
	"io/fs"
	"maps"

	"github.com/skypro1111/tcp-http-server/internal/protocol"
)

// StaticFiles serves an in-memory path to content map. Keys start with '/'.
// It is read-only after construction. A nil *StaticFiles serves nothing and
// renders the built-in error pages.
type StaticFiles struct {
	files map[string][]byte
}

// NewStaticFiles serves a copy of files.
func NewStaticFiles(files map[string][]byte) *StaticFiles {
	return &StaticFiles{files: maps.Clone(files)}
}

// LoadStaticFiles reads every regular file below the root of fsys. A file at
// css/site.css is served as /css/site.css.
func LoadStaticFiles(fsys fs.FS) (*StaticFiles, error) {
	files := make(map[string][]byte)

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read static file %s: %w", path, err)
		}
		files["/"+path] = content
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &StaticFiles{files: files}, nil
}

// Lookup returns the content stored for path.
func (s *StaticFiles) Lookup(path string) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	content, ok := s.files[path]
	return content, ok
}

// Len returns the number of files.
func (s *StaticFiles) Len() int {
	if s == nil {
		return 0
	}
	return len(s.files)
}

func (s *StaticFiles) CanHandle(req *protocol.Request) bool {
	_, ok := s.Lookup(req.Path())
	return ok
}

// Handle serves the file at the request path, or the 404 page.
func (s *StaticFiles) Handle(req *protocol.Request) *protocol.Response {
	content, ok := s.Lookup(req.Path())
	if !ok {
		return s.NotFound()
	}
	return OK(protocol.MimeTypeFromPath(req.Path()), content)
}

// NotFound renders /error/404.html, or a built-in page when it is missing.
func (s *StaticFiles) NotFound() *protocol.Response {
	return s.errorResponse(404, notFoundPage)
}

// InternalServerError renders /error/500.html, or a built-in page when it is missing.
func (s *StaticFiles) InternalServerError() *protocol.Response {
	return s.errorResponse(500, internalServerErrorPage)
}

func (s *StaticFiles) errorResponse(code int, page string) *protocol.Response {
	if body, ok := s.Lookup(page); ok {
		return errorPage(code, body)
	}
	return builtinPage(code)
}
