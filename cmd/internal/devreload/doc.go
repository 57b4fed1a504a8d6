// Package devreload pushes build readiness to browsers over WebSocket.
//
// Only mounted in development. Every connection first receives a hello
// carrying the active build version; each successful hot swap broadcasts
// build.ready. Clients never send application messages.
package devreload
