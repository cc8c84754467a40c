// Package server implements the TCP side of the HTTP server: the listening
// socket and accept loop, a bounded worker pool, and the per-connection
// lifecycle that parses one request, dispatches it and writes the response.
package server
