package model

// HashValue is a SHA-256 digest stored as a lowercase hex string.
type HashValue string

// EmptySnapshot is the canonical literal for "no prior state".
const EmptySnapshot = "{}"

// Revision is the monotonic version counter of an entity row. Zero means the
// entity has never been written.
type Revision uint64

// SignatureStatus is the operator-facing result of a signature check.
type SignatureStatus string

const (
	SignatureValid       SignatureStatus = "Valid"
	SignatureInvalid     SignatureStatus = "Invalid"
	SignatureUnavailable SignatureStatus = "Signature unavailable"
)
