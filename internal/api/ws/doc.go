// Package ws carries the terminal protocol between the backend and the
// rendering surface over a WebSocket.
//
// Each frame is one JSON message. Outbound frames come from the
// dispatcher through Conn.Send; inbound frames are decoded and handed to
// the dispatcher. Input commands pass through a per-connection token
// bucket, so a flood of keystrokes slows the reader instead of being
// dropped.
//
// Example Usage:
//
//	handler := ws.NewHandler(dispatcher, ws.Options{Logger: logger, Metrics: metrics})
//	router.GET("/ws", handler.HandleConnection)
package ws
