package protocol

import "errors"

var (
	// ErrMalformedRequest reports an empty or invalid request line, or a
	// request whose framing cannot be honored.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrHeaderTooLarge reports a request line plus header block over the limit.
	ErrHeaderTooLarge = errors.New("request header too large")
	// ErrBodyTooLarge reports a Content-Length over the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")
)
