package protocol

import (
	"maps"
	"strings"
)

// Request is a parsed HTTP request. It is immutable once built: every map is
// copied on Build and accessors that return maps return copies.
type Request struct {
	method      string
	path        string
	version     string
	headers     map[string]string
	cookies     map[string]string
	queryParams map[string]string
	body        string
	hasBody     bool
	bodyBytes   []byte
}

// Method returns the request method token as sent.
func (r *Request) Method() string { return r.method }

// Path returns the decoded path with the query string stripped.
func (r *Request) Path() string { return r.path }

// Version returns the protocol version from the request line.
func (r *Request) Version() string { return r.version }

// Header returns the value of the header with exactly this name.
func (r *Request) Header(name string) (string, bool) {
	v, ok := r.headers[name]
	return v, ok
}

// HeaderFold returns the value of the header whose name matches case-insensitively.
// If several names fold to the same value, the exact match wins.
func (r *Request) HeaderFold(name string) (string, bool) {
	return lookupFold(r.headers, name)
}

// Headers returns a copy of the header map.
func (r *Request) Headers() map[string]string { return maps.Clone(r.headers) }

// Cookie returns the decoded value of the named cookie.
func (r *Request) Cookie(name string) (string, bool) {
	v, ok := r.cookies[name]
	return v, ok
}

// Cookies returns a copy of the cookie map.
func (r *Request) Cookies() map[string]string { return maps.Clone(r.cookies) }

// QueryParam returns the decoded value of the named query parameter.
func (r *Request) QueryParam(name string) (string, bool) {
	v, ok := r.queryParams[name]
	return v, ok
}

// QueryParams returns a copy of the query parameter map.
func (r *Request) QueryParams() map[string]string { return maps.Clone(r.queryParams) }

// Body returns the decoded text body. It is present only when the request
// carried both a body and a Content-Type.
func (r *Request) Body() (string, bool) { return r.body, r.hasBody }

// BodyBytes returns the raw body, or nil when Content-Length was absent or zero.
// The slice is shared with the request and must not be modified.
func (r *Request) BodyBytes() []byte { return r.bodyBytes }

// ContentType returns the Content-Type header, matched case-insensitively.
func (r *Request) ContentType() string {
	v, _ := r.HeaderFold(HeaderContentType)
	return v
}

// RequestBuilder accumulates request fields. It is used by the parser and by
// tests or handlers that need to synthesize requests.
type RequestBuilder struct {
	method      string
	path        string
	version     string
	headers     map[string]string
	cookies     map[string]string
	queryParams map[string]string
	body        string
	hasBody     bool
	bodyBytes   []byte
}

// NewRequestBuilder creates an empty builder.
func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{
		headers:     make(map[string]string),
		cookies:     make(map[string]string),
		queryParams: make(map[string]string),
	}
}

func (b *RequestBuilder) Method(method string) *RequestBuilder {
	b.method = method
	return b
}

func (b *RequestBuilder) Path(path string) *RequestBuilder {
	b.path = path
	return b
}

func (b *RequestBuilder) Version(version string) *RequestBuilder {
	b.version = version
	return b
}

// Header sets a header. A repeated name replaces the earlier value.
func (b *RequestBuilder) Header(name, value string) *RequestBuilder {
	b.headers[name] = value
	return b
}

func (b *RequestBuilder) Cookie(name, value string) *RequestBuilder {
	b.cookies[name] = value
	return b
}

func (b *RequestBuilder) QueryParam(name, value string) *RequestBuilder {
	b.queryParams[name] = value
	return b
}

// Body sets the decoded text body.
func (b *RequestBuilder) Body(body string) *RequestBuilder {
	b.body = body
	b.hasBody = true
	return b
}

// BodyBytes sets the raw body.
func (b *RequestBuilder) BodyBytes(body []byte) *RequestBuilder {
	b.bodyBytes = body
	return b
}

// lookupHeader is the parser's case-insensitive view of headers seen so far.
func (b *RequestBuilder) lookupHeader(name string) (string, bool) {
	return lookupFold(b.headers, name)
}

// Build returns an immutable Request. The builder may keep being used; later
// changes do not leak into requests already built.
func (b *RequestBuilder) Build() *Request {
	return &Request{
		method:      b.method,
		path:        b.path,
		version:     b.version,
		headers:     maps.Clone(b.headers),
		cookies:     maps.Clone(b.cookies),
		queryParams: maps.Clone(b.queryParams),
		body:        b.body,
		hasBody:     b.hasBody,
		bodyBytes:   b.bodyBytes,
	}
}

func lookupFold(m map[string]string, name string) (string, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
