// Package canonical provides the deterministic serialization used for
// content-addressed identity and golden traces.
//
// Output follows RFC 8785 for the value types it accepts: object keys are
// sorted by UTF-16 code units, strings are NFC normalized and not HTML
// escaped, and floats and null are rejected. The same logical value always
// produces the same bytes, so hashes computed over it are stable across
// runs and platforms.
package canonical
