// Package protocol implements the HTTP/1.1 wire codec and the request/response model.
// It decodes a request line, header block, cookies, query string and a
// Content-Length framed body from a byte stream, and encodes responses back
// into status line, headers and raw body with no implicit header synthesis.
package protocol
