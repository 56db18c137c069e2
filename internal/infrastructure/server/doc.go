// Package server assembles the terminal host: configuration, terminal
// service, dispatcher, session manager and the HTTP and WebSocket routes.
package server
