// Package link implements the reliable link layer for the OOK radio.
package link

// The engine turns the half-duplex, unreliable radio channel into an
// acknowledged, error-corrected transport. Outbound payloads are framed,
// split into Reed-Solomon blocks and Manchester line-coded; inbound symbol
// buffers travel the reverse path. A per-peer session state machine drives
// acknowledgment, retransmission with exponential backoff, and duplicate
// suppression so the application sees at-most-once delivery over an
// at-least-once channel.
//
// One engine goroutine owns the transceiver and the session table; all
// other goroutines talk to it through channels. Decode failures on inbound
// data are channel noise: counted, never surfaced.
