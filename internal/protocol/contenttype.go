package protocol

import "strings"

// Common MIME types.
const (
	MimeHTML           = "text/html; charset=UTF-8"
	MimeCSS            = "text/css; charset=UTF-8"
	MimeJS             = "application/javascript; charset=UTF-8"
	MimeJSON           = "application/json; charset=UTF-8"
	MimeText           = "text/plain; charset=UTF-8"
	MimeFormURLEncoded = "application/x-www-form-urlencoded; charset=UTF-8"
	MimeMultipartForm  = "multipart/form-data"
)

var mimeByExtension = map[string]string{
	"html": MimeHTML,
	"css":  MimeCSS,
	"js":   MimeJS,
	"json": MimeJSON,
	"ico":  "image/x-icon",
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"txt":  MimeText,
}

// MimeTypeFromPath maps the extension of path to a MIME type. Unknown
// extensions map to plain UTF-8 text.
func MimeTypeFromPath(path string) string {
	if mt, ok := mimeByExtension[strings.ToLower(ExtensionFromPath(path))]; ok {
		return mt
	}
	return MimeText
}

// ExtensionFromPath returns the text after the last '.', or "" when there is
// no dot or the dot is the first character.
func ExtensionFromPath(path string) string {
	dot := strings.LastIndexByte(path, '.')
	if dot <= 0 {
		return ""
	}
	return path[dot+1:]
}
