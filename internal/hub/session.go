package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"cherryvm/vmhub/internal/registry"
	"cherryvm/vmhub/internal/vmid"
	"cherryvm/vmhub/internal/vmmodel"
)

// ConnState is the session's lifecycle state: CONNECTING -> OPEN -> CLOSED,
// with CLOSING as the brief window between a close decision and the socket
// actually going away.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

// Close codes used when a handler or an administrator tears a session down.
const (
	CloseUnauthenticated     = 4401
	CloseForbidden           = 4403
	CloseAdministrative      = 4000
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	sendQueueCapacity = 64
)

type frame struct {
	payload   []byte
	essential bool
}

// Session owns one upgraded transport. Server authenticates the connection,
// registers the session with its scope and queues the initial snapshot on
// it; ReadPump then idles on the transport until disconnect. Outbound sends
// are serialized through a bounded queue drained by a single writer
// goroutine, which gives per-session ordering and lets backpressure drop
// stale broadcast frames without ever dropping a lifecycle frame.
type Session struct {
	key       registry.SessionKey
	transport Transport
	userID    *vmid.UserID
	logger    *logrus.Entry

	state atomic.Int32

	queueMu sync.Mutex
	queue   []frame
	notify  chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func NewSession(key registry.SessionKey, transport Transport, userID *vmid.UserID, logger *logrus.Entry) *Session {
	s := &Session{
		key:       key,
		transport: transport,
		userID:    userID,
		logger:    logger,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) Key() registry.SessionKey { return s.key }

func (s *Session) State() ConnState { return ConnState(s.state.Load()) }

func (s *Session) setState(st ConnState) { s.state.Store(int32(st)) }

// SendCapable reports whether a broadcast pass may still send to this
// session; the registry package depends only on this method.
func (s *Session) SendCapable() bool { return s.State() == StateOpen }

func (s *Session) UserID() *vmid.UserID { return s.userID }

// EnqueueEssential queues a lifecycle frame (CREATE/DELETE/BOOTUP_*/SHUTDOWN_*
// or a modify-triggered DATA_STATIC re-send). Essential frames are never
// dropped for queue space; the queue grows past capacity rather than lose one.
func (s *Session) EnqueueEssential(msgType vmmodel.MessageType, body interface{}) {
	s.enqueue(msgType, body, true)
}

// EnqueueSnapshot queues a broadcast or initial-snapshot frame. Under
// backpressure the oldest queued non-essential frame is dropped to make
// room; if no non-essential frame exists to evict, the new snapshot frame
// is itself dropped (it will be superseded by the next broadcast pass anyway).
func (s *Session) EnqueueSnapshot(msgType vmmodel.MessageType, body interface{}) {
	s.enqueue(msgType, body, false)
}

func (s *Session) enqueue(msgType vmmodel.MessageType, body interface{}, essential bool) {
	if s.State() == StateClosed {
		return
	}
	env := vmmodel.NewEnvelope(msgType, body)
	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.WithError(err).Error("failed to marshal outbound envelope")
		return
	}

	s.queueMu.Lock()
	if len(s.queue) >= sendQueueCapacity {
		evicted := false
		for i := range s.queue {
			if !s.queue[i].essential {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted && !essential {
			s.queueMu.Unlock()
			return
		}
	}
	s.queue = append(s.queue, frame{payload: payload, essential: essential})
	s.queueMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) dequeue() (frame, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.queue) == 0 {
		return frame{}, false
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	return f, true
}

// WritePump drains the send queue to the transport and keeps the
// connection alive with periodic pings. Runs until the session closes.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
			for {
				f, ok := s.dequeue()
				if !ok {
					break
				}
				s.transport.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.transport.WriteMessage(websocket.TextMessage, f.payload); err != nil {
					s.Close(0, "")
					return
				}
			}
		case <-ticker.C:
			s.transport.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.transport.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.Close(0, "")
				return
			}
		}
	}
}

// ReadPump consumes inbound frames purely for liveness: the channel is
// server-push only, so every inbound payload is discarded. Returns when the
// transport errors or closes.
func (s *Session) ReadPump(onDisconnect func()) {
	defer onDisconnect()

	s.transport.SetReadLimit(maxMessageSize)
	s.transport.SetReadDeadline(time.Now().Add(pongWait))
	s.transport.SetPongHandler(func(string) error {
		s.transport.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.transport.ReadMessage(); err != nil {
			return
		}
	}
}

// Close transitions the session to CLOSED and tears down the transport. If
// code is non-zero a close frame carrying it (and reason) is attempted
// first; code 0 means the transport is already gone (e.g. a write failed).
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		if code != 0 {
			msg := websocket.FormatCloseMessage(code, reason)
			s.transport.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}
		close(s.done)
		s.transport.Close()
	})
}
