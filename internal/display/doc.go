// Package display owns the server runtime: client connections, resource
// tables, request dispatch and event delivery.
//
// Ownership boundary:
// - client lifecycle from accept to teardown
// - resource identity, versions and destruction
// - request decode, validation and handler invocation
// - event queueing, flushing and fatal protocol errors
// - global advertisement through wl_registry
package display
