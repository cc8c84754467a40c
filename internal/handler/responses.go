package handler

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/skypro1111/tcp-http-server/internal/protocol"
)

const (
	notFoundPage            = "/error/404.html"
	internalServerErrorPage = "/error/500.html"
)

// OK builds a 200 response carrying body with its Content-Type and Content-Length.
func OK(contentType string, body []byte) *protocol.Response {
	return withBody(protocol.NewResponseBuilder(), contentType, body).Build()
}

// Text builds a plain text response.
func Text(status int, text string) *protocol.Response {
	return withBody(protocol.NewResponseBuilder().Status(status), protocol.MimeText, []byte(text)).Build()
}

// JSON builds a response whose body is v encoded as JSON.
func JSON(status int, v any) (*protocol.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response body: %w", err)
	}
	return withBody(protocol.NewResponseBuilder().Status(status), protocol.MimeJSON, body).Build(), nil
}

// Redirect builds a 302 response pointing at location.
func Redirect(location string) *protocol.Response {
	return protocol.NewResponseBuilder().
		Status(302).
		Header(protocol.HeaderLocation, location).
		Build()
}

func withBody(b *protocol.ResponseBuilder, contentType string, body []byte) *protocol.ResponseBuilder {
	return b.
		Header(protocol.HeaderContentType, contentType).
		Header(protocol.HeaderContentLength, strconv.Itoa(len(body))).
		Body(body)
}

func errorPage(code int, body []byte) *protocol.Response {
	return withBody(protocol.NewResponseBuilder().Status(code), protocol.MimeHTML, body).Build()
}

func builtinPage(code int) *protocol.Response {
	text := strconv.Itoa(code) + " " + protocol.StatusText(code)
	return errorPage(code, []byte("<html><body><h1>"+text+"</h1></body></html>"))
}
