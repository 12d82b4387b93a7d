package bridge

import "errors"

// ErrPayloadTooLarge is returned by Forward for payloads the 16 bit length
// prefix cannot describe.
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrClientStalled is returned by Forward when the client did not read a
// message within the write timeout.
var ErrClientStalled = errors.New("client stalled")
