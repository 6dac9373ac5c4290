/*
Package chattest provides an in-memory chat backend for tests and local runs.

The Server implements the REST endpoints and the websocket channel the client expects,
relays typing events between participants, broadcasts presence and new messages, and
exposes knobs for the situations the client has to survive: failing sends, slow loads
and dropped connections.
*/
package chattest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"chatsync/internal/app/model"
	"chatsync/internal/app/user"
	"chatsync/internal/pkg/auth/jwt"
	"chatsync/internal/pkg/logx"
	"chatsync/internal/pkg/resp"
)

// DefaultSecret signs the tokens of a Server created without one.
const DefaultSecret = "chattest-secret"

type account struct {
	user user.User
	hash []byte
}

type chatRecord struct {
	id           string
	name         string
	isGroup      bool
	participants []string
	createdAt    time.Time
}

// Server is the fake backend. Its zero value is not usable; call New.
type Server struct {
	*httptest.Server

	// Secret signs and verifies session tokens.
	Secret string

	// mu protects every field below.
	mu       sync.Mutex
	accounts map[string]*account
	byEmail  map[string]string
	chats    map[string]*chatRecord
	order    []string
	messages map[string][]model.Message
	readAt   map[string]map[string]int

	conns   map[string]*peer
	inbound []Inbound

	sendFailure  *failure
	messageGates map[string]chan struct{}
	closed       bool

	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

type failure struct {
	status  int
	message string
}

// Inbound is one frame a client sent on its websocket.
type Inbound struct {
	UserID string
	Frame  []byte
}

// New starts a Server on a loopback port.
func New() *Server {
	s := &Server{
		Secret:       DefaultSecret,
		accounts:     make(map[string]*account),
		byEmail:      make(map[string]string),
		chats:        make(map[string]*chatRecord),
		messages:     make(map[string][]model.Message),
		readAt:       make(map[string]map[string]int),
		conns:        make(map[string]*peer),
		messageGates: make(map[string]chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logx.Component("chattest"),
	}

	s.Server = httptest.NewServer(s.router())
	return s
}

// APIURL is the REST base URL.
func (s *Server) APIURL() string {
	return s.URL + "/api"
}

// WSURL is the websocket endpoint.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

// Close drops every websocket and stops the server.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.DropConnections()
	s.Server.Close()
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	requireAuth := jwt.RequireAuthMiddleware(s.Secret, func(w http.ResponseWriter, r *http.Request) {
		resp.RespondError(w, http.StatusUnauthorized, "Invalid token")
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", s.handleLogin)
			auth.Post("/register", s.handleRegister)
		})

		api.Group(func(private chi.Router) {
			private.Use(requireAuth)

			private.Get("/users/me", s.handleMe)
			private.Get("/users", s.handleUsers)
			private.Get("/users/{id}", s.handleUser)

			private.Get("/chats", s.handleChats)
			private.Post("/chats", s.handleCreateChat)
			private.Post("/chats/group", s.handleCreateGroup)
			private.Get("/chats/{id}", s.handleChat)
			private.Get("/chats/{id}/messages", s.handleMessages)
			private.Post("/chats/{id}/messages", s.handleSendMessage)
		})
	})

	r.With(requireAuth).Get("/ws", s.handleWebSocket)

	return r
}
