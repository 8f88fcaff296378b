// Package protocol owns the wire contract and marshalling primitives.
//
// Ownership boundary:
// - frame header primitives
// - argument type codes and signature parsing
// - signature-driven argument encode/decode
// - fixed-point conversions
package protocol
