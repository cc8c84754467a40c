package protocol

import "strings"

// DecodePath percent-decodes a path or cookie value. '+' is kept literally.
// A '%' that does not start a valid escape is decoded as a literal '%'.
func DecodePath(s string) string {
	return unescape(s, false)
}

// DecodeQuery percent-decodes a query or form component, turning '+' into a space.
// A '%' that does not start a valid escape is decoded as a literal '%'.
func DecodeQuery(s string) string {
	return unescape(s, true)
}

// neutralizeEscapes rewrites every '%' that is not followed by two hex
// digits to "%25", so that the result always decodes.
func neutralizeEscapes(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && !(i+2 < len(s) && ishex(s[i+1]) && ishex(s[i+2])) {
			sb.WriteString("%25")
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func unescape(s string, plusIsSpace bool) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	s = neutralizeEscapes(s)

	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '%':
			buf = append(buf, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
		case c == '+' && plusIsSpace:
			buf = append(buf, ' ')
		default:
			buf = append(buf, c)
		}
	}
	return string(buf)
}

func ishex(c byte) bool {
	switch {
	case '0' <= c && c <= '9':
		return true
	case 'a' <= c && c <= 'f':
		return true
	case 'A' <= c && c <= 'F':
		return true
	}
	return false
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
