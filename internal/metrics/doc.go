// Package metrics defines the Prometheus collectors recorded by the server,
// the session store and the dispatcher.
package metrics
