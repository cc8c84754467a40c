// Package handler defines the request handler contract and the pieces that
// sit behind it: the Dispatcher, method routes, the static file fallback,
// stock responses and the Prometheus text endpoint.
package handler
