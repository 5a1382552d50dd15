package wire

import "errors"

// ErrMalformed covers every frame-level and message-level fault that is
// always fatal to the session: out-of-range reads, size-ceiling violations,
// encryption-bit mismatches, checksum/count mismatches, and MASSIVE
// assembly violations. Callers compare with errors.Is, never by string.
var ErrMalformed = errors.New("wire: malformed")
