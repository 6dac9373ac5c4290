package chattest

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatsync/internal/app/transport"
	"chatsync/internal/pkg/errs"
)

const writeWait = 5 * time.Second

// peer is one connected client.
type peer struct {
	userID string
	conn   *websocket.Conn

	// mu serializes writes to conn.
	mu sync.Mutex
}

func (p *peer) write(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := s.callerID(r)

	s.mu.Lock()
	closed := s.closed
	_, known := s.accounts[userID]
	s.mu.Unlock()

	if closed || !known {
		http.Error(w, "Unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Upgrade failed")
		return
	}

	p := &peer{userID: userID, conn: conn}

	s.mu.Lock()
	if old := s.conns[userID]; old != nil {
		old.conn.Close()
	}
	s.conns[userID] = p
	s.setOnlineLocked(userID, true)
	s.mu.Unlock()

	s.broadcastPresence(userID, true)
	s.readLoop(p)

	s.mu.Lock()
	current := s.conns[userID] == p
	if current {
		delete(s.conns, userID)
		s.setOnlineLocked(userID, false)
	}
	s.mu.Unlock()

	conn.Close()
	if current {
		s.broadcastPresence(userID, false)
	}
}

func (s *Server) readLoop(p *peer) {
	for {
		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.inbound = append(s.inbound, Inbound{UserID: p.userID, Frame: frame})
		s.mu.Unlock()

		ev, err := transport.Decode(frame)
		if err != nil {
			s.logger.Debug().Err(err).Msg("Ignoring client frame")
			continue
		}

		if t, ok := ev.(transport.TypingChanged); ok {
			s.relayTyping(p.userID, t)
		}
	}
}

func (s *Server) relayTyping(senderID string, t transport.TypingChanged) {
	s.mu.Lock()
	c, ok := s.chats[t.ChatID]
	var recipients []string
	if ok && slices.Contains(c.participants, senderID) {
		recipients = slices.DeleteFunc(slices.Clone(c.participants), func(id string) bool { return id == senderID })
	}
	s.mu.Unlock()

	t.UserID = senderID
	for _, id := range recipients {
		_ = s.Push(id, t)
	}
}

func (s *Server) setOnlineLocked(userID string, online bool) {
	if acc, ok := s.accounts[userID]; ok {
		acc.user = acc.user.WithPresence(online, time.Now())
	}
}

func (s *Server) broadcastPresence(userID string, online bool) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		if id != userID {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.Push(id, transport.PresenceChanged{UserID: userID, IsOnline: online})
	}
}

// Push sends ev to userID's connection.
func (s *Server) Push(userID string, ev transport.Event) error {
	frame, err := transport.Encode(ev)
	if err != nil {
		return err
	}
	return s.PushRaw(userID, frame)
}

// PushRaw sends frame verbatim to userID's connection.
func (s *Server) PushRaw(userID string, frame []byte) error {
	s.mu.Lock()
	p := s.conns[userID]
	s.mu.Unlock()

	if p == nil {
		return errs.NewError(errs.ErrNotConnected)
	}
	return p.write(frame)
}

// Connected reports whether userID holds a websocket.
func (s *Server) Connected(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[userID] != nil
}

// WaitConnected polls until userID is connected or timeout passes.
func (s *Server) WaitConnected(userID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Connected(userID) {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.Connected(userID)
}

// DropConnections closes every websocket abruptly.
func (s *Server) DropConnections() {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.conns))
	for _, p := range s.conns {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.conn.Close()
	}
}

// Inbound returns every frame clients have sent so far.
func (s *Server) Inbound() []Inbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.inbound)
}

// InboundTyping returns the typing events userID has sent so far.
func (s *Server) InboundTyping(userID string) []transport.TypingChanged {
	var out []transport.TypingChanged
	for _, in := range s.Inbound() {
		if in.UserID != userID {
			continue
		}
		if ev, err := transport.Decode(in.Frame); err == nil {
			if t, ok := ev.(transport.TypingChanged); ok {
				out = append(out, t)
			}
		}
	}
	return out
}
