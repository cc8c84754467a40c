package protocol

import (
	"bytes"
	"io"
	"strconv"
	"strings"
)

// HeaderField is one response header line.
type HeaderField struct {
	Name  string
	Value string
}

// Response is an HTTP response ready to be encoded. Headers and body are
// frozen once built.
type Response struct {
	version    string
	statusCode int
	statusText string
	headers    []HeaderField
	body       []byte
}

func (r *Response) Version() string    { return r.version }
func (r *Response) StatusCode() int    { return r.statusCode }
func (r *Response) StatusText() string { return r.statusText }

// Body returns the raw body. The slice must not be modified.
func (r *Response) Body() []byte { return r.body }

// Header returns the first value stored under name.
func (r *Response) Header(name string) (string, bool) {
	for _, h := range r.headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// HeaderValues returns every value stored under name, in encoding order.
// Set-Cookie is the only name that can repeat.
func (r *Response) HeaderValues(name string) []string {
	var values []string
	for _, h := range r.headers {
		if h.Name == name {
			values = append(values, h.Value)
		}
	}
	return values
}

// Headers returns a copy of the header fields in encoding order.
func (r *Response) Headers() []HeaderField {
	out := make([]HeaderField, len(r.headers))
	copy(out, r.headers)
	return out
}

// Bytes encodes the response: status line, headers in insertion order, a
// blank line and the raw body. Nothing is added implicitly.
func (r *Response) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(64 + 32*len(r.headers) + len(r.body))
	r.writeHead(&buf)
	buf.Write(r.body)
	return buf.Bytes()
}

// WriteTo writes the encoded response to w.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Bytes())
	return int64(n), err
}

// String renders the response for debug output.
func (r *Response) String() string {
	return string(r.Bytes())
}

func (r *Response) writeHead(buf *bytes.Buffer) {
	buf.WriteString(r.version)
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(r.statusCode))
	buf.WriteByte(' ')
	buf.WriteString(r.statusText)
	buf.WriteString(crlf)
	for _, h := range r.headers {
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString(crlf)
	}
	buf.WriteString(crlf)
}

// Cookie is a Set-Cookie entry materialized when the response is built.
type Cookie struct {
	Name     string
	Value    string
	MaxAge   int // >0 sets Max-Age, 0 deletes the cookie, <0 omits Max-Age
	HTTPOnly bool
}

// String renders the Set-Cookie value.
func (c Cookie) String() string {
	var sb strings.Builder
	sb.WriteString(c.Name)
	sb.WriteByte('=')
	sb.WriteString(c.Value)
	sb.WriteString("; Path=/")
	switch {
	case c.MaxAge > 0:
		sb.WriteString("; Max-Age=")
		sb.WriteString(strconv.Itoa(c.MaxAge))
	case c.MaxAge == 0:
		sb.WriteString("; Max-Age=0; Expires=")
		sb.WriteString(cookieEpoch)
	}
	if c.HTTPOnly {
		sb.WriteString("; HttpOnly")
	}
	return sb.String()
}

// ResponseBuilder accumulates response fields. The zero status is 200 OK.
type ResponseBuilder struct {
	version    string
	statusCode int
	statusText string
	headers    []HeaderField
	cookies    []Cookie
	body       []byte
}

// NewResponseBuilder returns a builder for an empty "HTTP/1.1 200 OK" response.
func NewResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{
		version:    DefaultVersion,
		statusCode: 200,
	}
}

func (b *ResponseBuilder) Version(version string) *ResponseBuilder {
	b.version = version
	return b
}

// Status sets the status code. The reason phrase defaults to the standard
// text for the code unless StatusText is called.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) StatusText(text string) *ResponseBuilder {
	b.statusText = text
	return b
}

// Header sets a header. Setting an existing name replaces its value in place.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	for i := range b.headers {
		if b.headers[i].Name == name {
			b.headers[i].Value = value
			return b
		}
	}
	b.headers = append(b.headers, HeaderField{Name: name, Value: value})
	return b
}

// Cookie adds a cookie. A second cookie with the same name replaces the first.
func (b *ResponseBuilder) Cookie(name, value string, maxAge int, httpOnly bool) *ResponseBuilder {
	c := Cookie{Name: name, Value: value, MaxAge: maxAge, HTTPOnly: httpOnly}
	for i := range b.cookies {
		if b.cookies[i].Name == name {
			b.cookies[i] = c
			return b
		}
	}
	b.cookies = append(b.cookies, c)
	return b
}

func (b *ResponseBuilder) Body(body []byte) *ResponseBuilder {
	b.body = body
	return b
}

// Build freezes the response. Cookies become one Set-Cookie header each,
// after the regular headers.
func (b *ResponseBuilder) Build() *Response {
	headers := make([]HeaderField, 0, len(b.headers)+len(b.cookies))
	headers = append(headers, b.headers...)
	for _, c := range b.cookies {
		headers = append(headers, HeaderField{Name: HeaderSetCookie, Value: c.String()})
	}

	text := b.statusText
	if text == "" {
		text = StatusText(b.statusCode)
	}

	body := make([]byte, len(b.body))
	copy(body, b.body)

	return &Response{
		version:    b.version,
		statusCode: b.statusCode,
		statusText: text,
		headers:    headers,
		body:       body,
	}
}
