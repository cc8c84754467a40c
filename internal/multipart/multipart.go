package multipart

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/skypro1111/tcp-http-server/internal/protocol"
)

var (
	// ErrNotMultipart is returned when the Content-Type is absent or is not multipart/form-data.
	ErrNotMultipart = errors.New("not a multipart/form-data request")
	// ErrMissingBoundary is returned when the Content-Type has no boundary parameter.
	ErrMissingBoundary = errors.New("multipart boundary missing")
)

const mediaType = "multipart/form-data"

// FileData is an uploaded file part.
type FileData struct {
	FileName    string
	ContentType string
	Extension   string
	Content     []byte
}

// Form holds the decoded parts of a multipart body. A repeated field name
// keeps the last part.
type Form struct {
	Fields map[string]string
	Files  map[string]*FileData
}

// Parse decodes the body of req using the boundary and charset declared in
// its Content-Type header.
func Parse(req *protocol.Request) (*Form, error) {
	return ParseBody(req.ContentType(), req.BodyBytes())
}

// ParseBody decodes body as multipart/form-data according to contentType.
func ParseBody(contentType string, body []byte) (*Form, error) {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), mediaType) {
		return nil, fmt.Errorf("%w: %q", ErrNotMultipart, contentType)
	}

	_, params := parseParams(contentType)
	boundary := params["boundary"]
	if boundary == "" {
		return nil, ErrMissingBoundary
	}

	form := &Form{
		Fields: make(map[string]string),
		Files:  make(map[string]*FileData),
	}
	dec := decoderFor(params["charset"])

	for _, part := range splitParts(body, []byte("--"+boundary)) {
		form.addPart(part, dec)
	}
	return form, nil
}

// splitParts returns the raw parts between delimiters. The line break before
// each delimiter belongs to the delimiter. Data before the first delimiter
// and after the closing one is ignored.
func splitParts(body, delim []byte) [][]byte {
	start := bytes.Index(body, delim)
	if start < 0 {
		return nil
	}
	rest := body[start+len(delim):]

	var parts [][]byte
	for len(rest) > 0 {
		if bytes.HasPrefix(rest, []byte("--")) {
			break
		}
		eol := bytes.IndexByte(rest, '\n')
		if eol < 0 {
			break
		}
		rest = rest[eol+1:]

		next := bytes.Index(rest, delim)
		if next < 0 {
			parts = append(parts, trimLineBreak(rest))
			break
		}
		parts = append(parts, trimLineBreak(rest[:next]))
		rest = rest[next+len(delim):]
	}
	return parts
}

func (f *Form) addPart(part []byte, dec *encoding.Decoder) {
	head, content, ok := cutHeaders(part)
	if !ok {
		return
	}

	var disposition, partType string
	for _, line := range strings.Split(head, "\n") {
		name, value, ok := strings.Cut(strings.TrimRight(line, "\r"), ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "content-disposition":
			disposition = strings.TrimSpace(value)
		case "content-type":
			partType = strings.TrimSpace(value)
		}
	}

	kind, params := parseParams(disposition)
	if !strings.EqualFold(kind, "form-data") {
		return
	}
	name, ok := params["name"]
	if !ok {
		return
	}

	filename, isFile := params["filename"]
	if !isFile {
		f.Fields[name] = strings.TrimSpace(decodeText(dec, content))
		return
	}

	filename = protocol.DecodeQuery(filename)
	f.Files[name] = &FileData{
		FileName:    filename,
		ContentType: partType,
		Extension:   protocol.ExtensionFromPath(filename),
		Content:     bytes.Clone(content),
	}
}

// cutHeaders splits a part at the blank line ending its header block.
func cutHeaders(part []byte) (string, []byte, bool) {
	if i := bytes.Index(part, []byte("\r\n\r\n")); i >= 0 {
		return string(part[:i]), part[i+4:], true
	}
	if i := bytes.Index(part, []byte("\n\n")); i >= 0 {
		return string(part[:i]), part[i+2:], true
	}
	return "", nil, false
}

func trimLineBreak(b []byte) []byte {
	if bytes.HasSuffix(b, []byte("\r\n")) {
		return b[:len(b)-2]
	}
	if bytes.HasSuffix(b, []byte("\n")) {
		return b[:len(b)-1]
	}
	return b
}

// parseParams splits a header value such as `form-data; name="a"` into its
// leading token and its parameters. Parameter names are lower-cased and
// quoted values unquoted. Separators inside quotes are not split on.
func parseParams(v string) (string, map[string]string) {
	var segments []string
	inQuote := false
	start := 0
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '"':
			inQuote = !inQuote
		case '\\':
			if inQuote {
				i++
			}
		case ';':
			if !inQuote {
				segments = append(segments, v[start:i])
				start = i + 1
			}
		}
	}
	segments = append(segments, v[start:])

	params := make(map[string]string)
	for _, seg := range segments[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(seg), "=")
		if !ok {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(key))] = unquote(strings.TrimSpace(value))
	}
	return strings.TrimSpace(segments[0]), params
}

func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	s = s[1 : len(s)-1]
	if !strings.Contains(s, `\`) {
		return s
	}
	return strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(s)
}

// decoderFor resolves a charset label. Unknown or absent labels yield nil,
// which means the bytes are taken as UTF-8.
func decoderFor(charset string) *encoding.Decoder {
	if charset == "" {
		return nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil
	}
	return enc.NewDecoder()
}

func decodeText(dec *encoding.Decoder, b []byte) string {
	if dec == nil {
		return string(b)
	}
	out, err := dec.Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
