// Package server implements the two local credential transports of the
// controller: the pairing endpoint and the captive portal.
//
// Both speak the same small slot protocol over WebSocket. A client writes
//
//	{"slot":"ssid","value":"Home"}
//	{"slot":"secret","value":"secret123"}
//	{"slot":"scan","value":""}
//
// and the controller notifies every connected client with
//
//	{"slot":"status","value":"credentials_ready"}
//	{"slot":"networks","value":"[{\"ssid\":\"Home\",\"rssi\":-52,\"open\":false}]"}
//
// Messages larger than the configured payload budget are refused and the
// connection is closed.
//
// # Handler Contract
//
// Inbound writes are handed to a WriteFunc on the connection's goroutine.
// The callee must only copy the value into a buffer and return; credential
// consumption and connection attempts happen later on the control loop.
//
// # Captive Portal
//
// The portal serves a plain HTML form at "/", accepts it at POST /connect,
// lists the last scan at GET /networks (add ?rescan=1 to request a new scan)
// and streams status notifications on /ws.
//
// # Graceful Shutdown
//
// Stop closes the listener and every open WebSocket, withdraws the mDNS
// advertisement and waits for connection goroutines to finish.
package server
