package protocol

// Wire constants
const (
	// DefaultVersion is used for responses built without an explicit version.
	DefaultVersion = "HTTP/1.1"

	crlf = "\r\n"

	// DefaultMaxHeaderBytes bounds the request line plus header block.
	DefaultMaxHeaderBytes = 64 * 1024
	// DefaultMaxBodyBytes bounds a Content-Length framed body.
	DefaultMaxBodyBytes = 10 * 1024 * 1024
)

// Header names the codec and the model look at.
const (
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"
	HeaderCookie        = "Cookie"
	HeaderSetCookie     = "Set-Cookie"
	HeaderLocation      = "Location"
)

// cookieEpoch is the Expires value used to delete a cookie.
const cookieEpoch = "Thu, 01 Jan 1970 00:00:00 GMT"

var statusText = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	409: "Conflict",
	411: "Length Required",
	413: "Content Too Large",
	415: "Unsupported Media Type",
	429: "Too Many Requests",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	505: "HTTP Version Not Supported",
}

// StatusText returns the standard reason phrase for code, or "" if unknown.
func StatusText(code int) string {
	return statusText[code]
}
