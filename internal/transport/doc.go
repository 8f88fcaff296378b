// Package transport owns the unix stream socket carrying frames between
// server and clients.
//
// Ownership boundary:
// - listener and connection setup
// - frame-granular reads and writes on the byte stream
// - file descriptor passing and the per-connection descriptor queue
package transport
