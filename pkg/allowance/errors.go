package allowance

import "errors"

// ErrStorage is returned when a store mutation could not complete safely.
// Mutators never panic: a recovered panic is logged and converted to this
// error instead, mirroring the spec's "lock poisoning never panics" rule.
var ErrStorage = errors.New("allowance: storage error")
