package httpconn

import "errors"

var (
	// ErrBodyTooLarge is returned when a buffered request body exceeds
	// the connection's configured soft cap.
	ErrBodyTooLarge = errors.New("httpconn: request body exceeds limit")
	// ErrProtocolError marks a WebSocket framing violation that forced
	// the connection to close (spec §4.7 fragmentation validation).
	ErrProtocolError = errors.New("httpconn: websocket protocol error")
)
