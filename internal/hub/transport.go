package hub

import "time"

// Transport is the subset of *websocket.Conn a Session needs. Defining it
// as an interface lets tests drive a Session with an in-memory fake instead
// of a real socket.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}
