// Package gateway is the device/client connection core.
//
// Devices and clients each hold one WebSocket. For every accepted socket
// the gateway runs a small set of goroutines tied to one context:
//
//	read loop   frames in arrival order, owns the socket's reader
//	write pump  the only writer of data frames
//	heartbeat   ping every interval, terminate after one silent interval
//	broadcast   clients only: DATA snapshot every interval
//
// Live connections are held in two Registry instances. A device ID maps to
// at most one DeviceConn; a reconnecting device evicts its predecessor.
// Clients are keyed by a per-socket connection ID.
//
// Termination is idempotent. It cancels the connection's context, sends a
// close frame, closes the socket and removes the entry from its registry
// by identity, so an evicted connection can never remove its successor.
//
// Errors inside a connection fall in two groups. Protocol and routing
// errors (ErrProtocol, ErrRouting) drop the frame and keep the connection.
// Liveness and transport errors end it.
package gateway
