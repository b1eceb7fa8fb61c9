// Package ws provides WebSocket connection handling and message routing
// for live diagram sessions.
//
// The package implements:
//   - Client: one live connection with a buffered outbound queue
//   - Hub: the set of registered clients and targeted delivery to one of them
//   - Handler: upgrades HTTP requests and runs the read/write pumps
//
// Inbound frames are handed, in arrival order, to a MessageHandler. Delivery
// to a client that has left the hub is dropped rather than retried.
package ws
