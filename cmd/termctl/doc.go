// Command termctl controls a running terminal host over its REST API.
//
// Usage:
//
//	termctl list
//	termctl create --name build --cwd ~/src/app
//	termctl input term_01J... "make test"
//	termctl delete term_01J...
//	termctl save
//	termctl restore
//	termctl diagnostics
//
// The server URL defaults to $TERMHOST_URL or http://127.0.0.1:8000.
package main
