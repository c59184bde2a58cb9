// Package signaling implements the WebSocket surface participants connect to.
//
// Each connection gets a server-assigned participant identifier, a bounded
// outbound queue drained by a single writer goroutine, and a reader that
// parses client events and hands them to the relay. The relay and room state
// never see the transport; everything they need arrives as already-validated
// protocol events.
package signaling
