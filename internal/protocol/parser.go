package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Parser decodes HTTP/1.1 requests from a byte stream. The zero value uses
// the default limits.
type Parser struct {
	// MaxHeaderBytes bounds the request line plus header block.
	MaxHeaderBytes int
	// MaxBodyBytes bounds the Content-Length a request may declare.
	MaxBodyBytes int64
}

// ParseRequest decodes one request from r using the default limits.
func ParseRequest(r io.Reader) (*Request, error) {
	return Parser{}.Parse(r)
}

// Parse decodes one request from r. When r is a *bufio.Reader it is used
// directly, so bytes after the request stay buffered in it.
//
// An empty stream, or a request line that is not exactly three space
// separated tokens, fails with ErrMalformedRequest. Malformed percent escapes
// never fail the parse.
func (p Parser) Parse(r io.Reader) (*Request, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	lr := &lineReader{r: br, limit: p.maxHeaderBytes()}
	b := NewRequestBuilder()

	if err := parseRequestLine(lr, b); err != nil {
		return nil, err
	}
	if err := parseHeaders(lr, b); err != nil {
		return nil, err
	}
	if err := p.parseBody(br, b); err != nil {
		return nil, err
	}

	return b.Build(), nil
}

func (p Parser) maxHeaderBytes() int {
	if p.MaxHeaderBytes > 0 {
		return p.MaxHeaderBytes
	}
	return DefaultMaxHeaderBytes
}

func (p Parser) maxBodyBytes() int64 {
	if p.MaxBodyBytes > 0 {
		return p.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}

func parseRequestLine(lr *lineReader, b *RequestBuilder) error {
	line, err := lr.readLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request line: %w", ErrMalformedRequest, err)
		}
		return err
	}
	if line == "" {
		return fmt.Errorf("%w: empty request line", ErrMalformedRequest)
	}

	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return fmt.Errorf("%w: invalid request line %q", ErrMalformedRequest, line)
	}

	b.Method(parts[0])
	parseTarget(parts[1], b)
	b.Version(parts[2])
	return nil
}

// parseTarget splits the raw target on the first '?' and decodes both halves.
func parseTarget(target string, b *RequestBuilder) {
	path, query, hasQuery := strings.Cut(target, "?")
	b.Path(DecodePath(path))
	if hasQuery {
		parseQuery(query, b)
	}
}

func parseQuery(query string, b *RequestBuilder) {
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		b.QueryParam(DecodeQuery(key), DecodeQuery(value))
	}
}

func parseHeaders(lr *lineReader, b *RequestBuilder) error {
	for {
		line, err := lr.readLine()
		if errors.Is(err, io.EOF) {
			// A stream that ends inside the header block ends the block.
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}

		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		b.Header(name, value)

		if strings.EqualFold(name, HeaderCookie) {
			parseCookies(value, b)
		}
	}
}

func parseCookies(header string, b *RequestBuilder) {
	for _, segment := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(segment), "=")
		if !ok {
			continue
		}
		b.Cookie(strings.TrimSpace(name), DecodePath(strings.TrimSpace(value)))
	}
}

func (p Parser) parseBody(r io.Reader, b *RequestBuilder) error {
	raw, ok := b.lookupHeader(HeaderContentLength)
	if !ok {
		return nil
	}

	length, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || length < 0 {
		return fmt.Errorf("%w: invalid Content-Length %q", ErrMalformedRequest, raw)
	}
	if length > p.maxBodyBytes() {
		return fmt.Errorf("%w: Content-Length %d exceeds %d", ErrBodyTooLarge, length, p.maxBodyBytes())
	}
	if length == 0 {
		return nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: body shorter than Content-Length: %w", ErrMalformedRequest, io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("failed to read body: %w", err)
	}
	b.BodyBytes(body)

	if _, ok := b.lookupHeader(HeaderContentType); ok {
		b.Body(strings.TrimSpace(string(body)))
	}
	return nil
}

// lineReader reads CRLF terminated lines and charges them against the header budget.
type lineReader struct {
	r     *bufio.Reader
	used  int
	limit int
}

// readLine returns the next line without its terminator and trailing
// whitespace. A final line cut short by EOF is returned as is; io.EOF is
// returned only when no byte was read.
func (lr *lineReader) readLine() (string, error) {
	var line []byte
	for {
		frag, err := lr.r.ReadSlice('\n')
		lr.used += len(frag)
		if lr.used > lr.limit {
			return "", fmt.Errorf("%w: more than %d bytes", ErrHeaderTooLarge, lr.limit)
		}
		line = append(line, frag...)

		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			break
		}
		return "", err
	}
	return strings.TrimRight(string(line), " \t\r\n"), nil
}
