package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func parseString(t *testing.T, raw string) *Request {
	t.Helper()
	req, err := ParseRequest(strings.NewReader(raw))
	require.NoError(t, err)
	return req
}

func TestParseRequestGet(t *testing.T) {
	req := parseString(t, "GET /index.html HTTP/1.1\r\n"+
		"Host: localhost:8080\r\n"+
		"User-Agent: Mozilla/5.0\r\n"+
		"\r\n")

	require.Equal(t, "GET", req.Method())
	require.Equal(t, "/index.html", req.Path())
	require.Equal(t, "HTTP/1.1", req.Version())

	host, ok := req.Header("Host")
	require.True(t, ok)
	require.Equal(t, "localhost:8080", host)

	ua, _ := req.Header("User-Agent")
	require.Equal(t, "Mozilla/5.0", ua)

	_, hasBody := req.Body()
	require.False(t, hasBody)
	require.Nil(t, req.BodyBytes())
	require.Empty(t, req.QueryParams())
}

func TestParseRequestMethods(t *testing.T) {
	for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
		t.Run(method, func(t *testing.T) {
			req := parseString(t, method+" /api/resource HTTP/1.1\r\nHost: api.example.com\r\n\r\n")
			require.Equal(t, method, req.Method())
			require.Equal(t, "/api/resource", req.Path())
		})
	}
}

func TestParseRequestBody(t *testing.T) {
	body := `{"key":"value"}`
	req := parseString(t, "POST /submit HTTP/1.1\r\n"+
		"Host: example.com\r\n"+
		"Content-Type: application/json\r\n"+
		"Content-Length: 15\r\n"+
		"\r\n"+
		body)

	ct, _ := req.Header("Content-Type")
	require.Equal(t, "application/json", ct)

	text, ok := req.Body()
	require.True(t, ok)
	require.Equal(t, body, text)
	require.Equal(t, []byte(body), req.BodyBytes())
}

func TestParseRequestBodyWithoutContentType(t *testing.T) {
	req := parseString(t, "POST /raw HTTP/1.1\r\nContent-Length: 4\r\n\r\nabcd")

	_, ok := req.Body()
	require.False(t, ok, "text body needs a Content-Type")
	require.Equal(t, []byte("abcd"), req.BodyBytes())
}

func TestParseRequestZeroContentLength(t *testing.T) {
	req := parseString(t, "POST /empty HTTP/1.1\r\nContent-Type: text/plain\r\nContent-Length: 0\r\n\r\n")

	_, ok := req.Body()
	require.False(t, ok)
	require.Nil(t, req.BodyBytes())
}

func TestParseRequestLowercaseContentLength(t *testing.T) {
	req := parseString(t, "POST /x HTTP/1.1\r\ncontent-type: text/plain\r\ncontent-length: 5\r\n\r\nhello")

	text, ok := req.Body()
	require.True(t, ok)
	require.Equal(t, "hello", text)

	_, exact := req.Header("Content-Length")
	require.False(t, exact, "exact lookups keep the parsed case")
	v, ok := req.HeaderFold("Content-Length")
	require.True(t, ok)
	require.Equal(t, "5", v)
}

func TestParseRequestUTF8Body(t *testing.T) {
	content := "안녕하세요"
	raw := "POST /submit HTTP/1.1\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"Content-Length: " + itoa(len(content)) + "\r\n" +
		"\r\n" + content

	req := parseString(t, raw)
	text, _ := req.Body()
	require.Equal(t, content, text)
}

func TestParseRequestLongHeader(t *testing.T) {
	long := strings.Repeat("a", 1000)
	req := parseString(t, "GET /long-header HTTP/1.1\r\nX-Long-Header: "+long+"\r\n\r\n")

	v, _ := req.Header("X-Long-Header")
	require.Equal(t, long, v)
}

func TestParseRequestDuplicateHeaderLastWins(t *testing.T) {
	req := parseString(t, "GET / HTTP/1.1\r\nX-A: one\r\nX-A: two\r\n\r\n")

	v, _ := req.Header("X-A")
	require.Equal(t, "two", v)
}

func TestParseRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "empty stream", raw: "", want: ErrMalformedRequest},
		{name: "blank request line", raw: "\r\n\r\n", want: ErrMalformedRequest},
		{name: "two tokens", raw: "GET /\r\n\r\n", want: ErrMalformedRequest},
		{name: "four tokens", raw: "GET / HTTP/1.1 extra\r\n\r\n", want: ErrMalformedRequest},
		{name: "bad content length", raw: "POST / HTTP/1.1\r\nContent-Length: abc\r\n\r\n", want: ErrMalformedRequest},
		{name: "negative content length", raw: "POST / HTTP/1.1\r\nContent-Length: -1\r\n\r\n", want: ErrMalformedRequest},
		{name: "short body", raw: "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc", want: ErrMalformedRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(strings.NewReader(tt.raw))
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected error %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseRequestEmptyStreamIsEOF(t *testing.T) {
	_, err := ParseRequest(strings.NewReader(""))
	require.ErrorIs(t, err, ErrMalformedRequest)
	require.ErrorIs(t, err, io.EOF)
}

func TestParseRequestLimits(t *testing.T) {
	p := Parser{MaxHeaderBytes: 64, MaxBodyBytes: 8}

	_, err := p.Parse(strings.NewReader("GET / HTTP/1.1\r\nX-Big: " + strings.Repeat("b", 100) + "\r\n\r\n"))
	require.ErrorIs(t, err, ErrHeaderTooLarge)

	_, err = p.Parse(strings.NewReader("POST / HTTP/1.1\r\nContent-Length: 9\r\n\r\n123456789"))
	require.ErrorIs(t, err, ErrBodyTooLarge)

	_, err = p.Parse(strings.NewReader("POST / HTTP/1.1\r\nContent-Length: 8\r\n\r\n12345678"))
	require.NoError(t, err)
}

func TestParseRequestQuery(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		path     string
		expected map[string]string
	}{
		{
			name:     "single",
			target:   "/search?q=test",
			path:     "/search",
			expected: map[string]string{"q": "test"},
		},
		{
			name:     "multiple",
			target:   "/search?q=test&page=1&limit=10",
			path:     "/search",
			expected: map[string]string{"q": "test", "page": "1", "limit": "10"},
		},
		{
			name:     "special characters",
			target:   "/search?q=hello+world&special=%21%40%23%24",
			path:     "/search",
			expected: map[string]string{"q": "hello world", "special": "!@#$"},
		},
		{
			name:     "incomplete escapes",
			target:   "/path?incomplete=%&valid=test&another=%2",
			path:     "/path",
			expected: map[string]string{"incomplete": "%", "valid": "test", "another": "%2"},
		},
		{
			name:     "keys without values",
			target:   "/toggle?feature1&feature2=",
			path:     "/toggle",
			expected: map[string]string{"feature1": "", "feature2": ""},
		},
		{
			name:     "empty pairs skipped",
			target:   "/p?a=1&&b=2&",
			path:     "/p",
			expected: map[string]string{"a": "1", "b": "2"},
		},
		{
			name:     "value keeps later equals",
			target:   "/p?expr=a=b",
			path:     "/p",
			expected: map[string]string{"expr": "a=b"},
		},
		{
			name:     "encoded question mark stays in path",
			target:   "/what%3F?x=1",
			path:     "/what?",
			expected: map[string]string{"x": "1"},
		},
		{
			name:     "plus kept in path",
			target:   "/a+b%20c",
			path:     "/a+b c",
			expected: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := parseString(t, "GET "+tt.target+" HTTP/1.1\r\nHost: example.com\r\n\r\n")
			require.Equal(t, tt.path, req.Path())
			require.Equal(t, tt.expected, req.QueryParams())
		})
	}
}

func TestParseRequestCookies(t *testing.T) {
	req := parseString(t, "GET / HTTP/1.1\r\n"+
		"cookie: sid=abc123; theme=dark%20blue; broken; token=a+b==\r\n"+
		"\r\n")

	sid, ok := req.Cookie("sid")
	require.True(t, ok)
	require.Equal(t, "abc123", sid)

	theme, _ := req.Cookie("theme")
	require.Equal(t, "dark blue", theme)

	token, _ := req.Cookie("token")
	require.Equal(t, "a+b==", token)

	_, ok = req.Cookie("broken")
	require.False(t, ok)
	require.Len(t, req.Cookies(), 3)
}

func TestParseRequestFragmentation(t *testing.T) {
	body := strings.Repeat("0123456789", 50)
	raw := "POST /upload?name=frag HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Cookie: sid=1\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: " + itoa(len(body)) + "\r\n" +
		"\r\n" + body

	whole, err := ParseRequest(bytes.NewReader([]byte(raw)))
	require.NoError(t, err)

	readers := map[string]io.Reader{
		"one byte":    iotest.OneByteReader(strings.NewReader(raw)),
		"half":        iotest.HalfReader(strings.NewReader(raw)),
		"chunks of 7": &chunkReader{data: []byte(raw), size: 7},
	}

	for name, r := range readers {
		t.Run(name, func(t *testing.T) {
			got, err := ParseRequest(r)
			require.NoError(t, err)
			require.Equal(t, whole, got)
		})
	}
}

func TestParseRequestLeavesNextBytesBuffered(t *testing.T) {
	r := bufioReader("GET /first HTTP/1.1\r\n\r\nGET /second HTTP/1.1\r\n\r\n")

	first, err := ParseRequest(r)
	require.NoError(t, err)
	require.Equal(t, "/first", first.Path())

	second, err := ParseRequest(r)
	require.NoError(t, err)
	require.Equal(t, "/second", second.Path())
}

func TestRequestIsImmutable(t *testing.T) {
	b := NewRequestBuilder().Method("GET").Path("/").Header("A", "1").QueryParam("q", "x")
	req := b.Build()

	b.Header("A", "2").QueryParam("q", "y")
	headers := req.Headers()
	headers["A"] = "3"

	v, _ := req.Header("A")
	require.Equal(t, "1", v)
	q, _ := req.QueryParam("q")
	require.Equal(t, "x", q)
}

// chunkReader hands out at most size bytes per Read call.
type chunkReader struct {
	data []byte
	size int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := min(len(p), c.size, len(c.data))
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func itoa(n int) string { return strconv.Itoa(n) }

func bufioReader(s string) *bufio.Reader { return bufio.NewReader(strings.NewReader(s)) }
