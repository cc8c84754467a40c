// Package session provides the in-memory session store shared by all
// connection workers. Sessions expire after an idle timeout, either lazily on
// lookup or through a periodic sweep.
package session
