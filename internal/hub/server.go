package hub

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"cherryvm/vmhub/internal/registry"
	"cherryvm/vmhub/internal/vmid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server ties the orchestrator, authenticator, and session bookkeeping
// together behind the three WebSocket endpoints and the administrative
// disconnect action.
type Server struct {
	Orchestrator *Orchestrator
	Auth         Authenticator
	Logger       *logrus.Logger

	nextKey uint64

	mu       sync.RWMutex
	byUserID map[vmid.UserID]map[*Session]struct{}
}

func NewServer(o *Orchestrator, auth Authenticator, logger *logrus.Logger) *Server {
	return &Server{
		Orchestrator: o,
		Auth:         auth,
		Logger:       logger,
		byUserID:     make(map[vmid.UserID]map[*Session]struct{}),
	}
}

func (s *Server) allocKey() uint64 { return atomic.AddUint64(&s.nextKey, 1) }

// ServeMachine handles /ws/machines/subscribed?machine_uuid=...&access_token=...
func (s *Server) ServeMachine(c *gin.Context) {
	midStr := c.Query("machine_uuid")
	mid, err := vmid.NewMachineID(midStr)
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	session, user, ok := s.acceptSession(c, nil)
	if !ok {
		return
	}
	s.trackUser(session, user)

	s.Orchestrator.Machine.Subscribe(session, mid)
	go session.ReadPump(func() {
		s.Orchestrator.Machine.Unsubscribe(session)
		s.untrackUser(session, user)
	})
	go session.WritePump()

	s.Orchestrator.Machine.InitialSnapshot(c.Request.Context(), session, mid)
}

// ServeAccount handles /ws/machines/account?access_token=...
func (s *Server) ServeAccount(c *gin.Context) {
	session, user, ok := s.acceptSession(c, nil)
	if !ok {
		return
	}
	s.trackUser(session, user)

	s.Orchestrator.Account.Subscribe(session, user.ID)
	go session.ReadPump(func() {
		s.Orchestrator.Account.Unsubscribe(session)
		s.untrackUser(session, user)
	})
	go session.WritePump()

	s.Orchestrator.Account.InitialSnapshot(c.Request.Context(), session, user.ID)
}

// ServeGlobal handles /ws/machines/global?access_token=...; requires VIEW_ALL_VMS.
func (s *Server) ServeGlobal(c *gin.Context) {
	requireCap := CapabilityViewAllVMs
	session, user, ok := s.acceptSession(c, &requireCap)
	if !ok {
		return
	}
	s.trackUser(session, user)

	s.Orchestrator.Global.Subscribe(session, struct{}{})
	go session.ReadPump(func() {
		s.Orchestrator.Global.Unsubscribe(session)
		s.untrackUser(session, user)
	})
	go session.WritePump()

	s.Orchestrator.Global.InitialSnapshot(c.Request.Context(), session, struct{}{})
}

// acceptSession authenticates, upgrades, and opens a session. On
// authentication/authorization failure it closes with the matching 44xx
// code and returns ok=false. requireCapability, if non-nil, additionally
// gates on the named capability (global scope's VIEW_ALL_VMS).
func (s *Server) acceptSession(c *gin.Context, requireCapability *string) (*Session, User, bool) {
	token := c.Query("access_token")
	if token == "" {
		token = c.GetHeader("Authorization")
	}

	user, authOK := s.Auth.Authenticate(c.Request.Context(), token)
	if !authOK {
		s.closeUpgrade(c, CloseUnauthenticated, "unauthenticated")
		return nil, User{}, false
	}
	if requireCapability != nil && !user.HasCapability(*requireCapability) {
		s.closeUpgrade(c, CloseForbidden, "insufficient permissions")
		return nil, User{}, false
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.WithError(err).Warn("websocket upgrade failed")
		return nil, User{}, false
	}

	logEntry := s.Logger.WithField("user_id", user.ID.String())
	session := NewSession(registry.SessionKey(s.allocKey()), conn, &user.ID, logEntry)
	session.setState(StateOpen)
	return session, user, true
}

// closeUpgrade rejects a connection before or during upgrade with a 44xx
// WebSocket close code, per §4.2.
func (s *Server) closeUpgrade(c *gin.Context, code int, reason string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	conn.Close()
}

func (s *Server) trackUser(session *Session, user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.byUserID[user.ID]
	if !ok {
		set = make(map[*Session]struct{})
		s.byUserID[user.ID] = set
	}
	set[session] = struct{}{}
}

func (s *Server) untrackUser(session *Session, user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.byUserID[user.ID]
	if !ok {
		return
	}
	delete(set, session)
	if len(set) == 0 {
		delete(s.byUserID, user.ID)
	}
}

// DisconnectUser administratively closes every live session for a user
// across all three scopes, per §5's disconnect_user(user_id, code, reason).
// It enumerates sessions under lock so a session registering concurrently
// either observes the close or lands in the next enumeration, never both.
func (s *Server) DisconnectUser(userID vmid.UserID, code int, reason string) int {
	s.mu.RLock()
	set := s.byUserID[userID]
	sessions := make([]*Session, 0, len(set))
	for sess := range set {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.Close(code, reason)
	}
	return len(sessions)
}
