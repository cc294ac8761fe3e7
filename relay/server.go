package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"community-hub/auth"
	"community-hub/domain"
	"community-hub/observability"
	"community-hub/search"
	"community-hub/transport"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var ErrUnknownOp = errors.New("unknown operation")

// Server exposes the relay over HTTP: the websocket endpoint for live chat
// and a small REST surface for accounts, history, search, and stats.
type Server struct {
	log          *slog.Logger
	svc          *Service
	authSvc      *AuthService
	tokens       *auth.TokenManager
	monitoring   *observability.MonitoringManager
	outboundCap  int
	writeTimeout time.Duration
}

func NewServer(
	log *slog.Logger,
	svc *Service,
	authSvc *AuthService,
	tokens *auth.TokenManager,
	monitoring *observability.MonitoringManager,
	outboundCap int,
	writeTimeout time.Duration,
) *Server {
	return &Server{
		log:          log,
		svc:          svc,
		authSvc:      authSvc,
		tokens:       tokens,
		monitoring:   monitoring,
		outboundCap:  outboundCap,
		writeTimeout: writeTimeout,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	return mux
}

// handleWebsocket upgrades the connection and runs the session until the
// client goes away or the server context ends. The request context is wired
// to the run context through the HTTP server's BaseContext, so a graceful
// shutdown ends every read loop and the teardown close tells clients the
// ending was deliberate.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authorize(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket accept failed", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()
	conn := transport.NewConn(c, 0, s.writeTimeout)
	session := NewSession(uuid.NewString(), claims.UserID, claims.DisplayName, conn, s.outboundCap, s.monitoring, s.log)
	s.svc.Connect(session)
	s.log.Info("Session connected",
		slog.String("session_id", session.ID),
		slog.String("user_id", session.UserID))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := session.WritePump(ctx); err != nil {
			s.log.Debug("Session writer stopped", slog.String("error", err.Error()))
		}
		// Unblocks the read loop if the writer died first
		_ = conn.Close()
	}()

	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			s.log.Debug("Session read ended",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()))
			break
		}
		if err := s.dispatch(ctx, session, frame); err != nil {
			s.sendError(ctx, session, err)
		}
	}

	s.svc.Disconnect(ctx, session)
	<-writerDone
	s.log.Info("Session disconnected", slog.String("session_id", session.ID))
}

// dispatch routes one inbound frame. Authorship always comes from the
// verified token, whatever the payload claims.
func (s *Server) dispatch(ctx context.Context, session *Session, f transport.Frame) error {
	switch f.Op {
	case transport.OpJoin:
		var p transport.JoinPayload
		if err := f.Decode(&p); err != nil {
			return err
		}
		return s.svc.Join(ctx, session, p.CommunityID)
	case transport.OpLeave:
		return s.svc.Leave(ctx, session)
	case transport.OpSend:
		var req domain.SendRequest
		if err := f.Decode(&req); err != nil {
			return err
		}
		req.AuthorID = session.UserID
		req.DisplayName = session.DisplayName
		return s.svc.Post(ctx, session, req)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOp, f.Op)
	}
}

func (s *Server) sendError(ctx context.Context, session *Session, err error) {
	code := "internal"
	switch {
	case errors.Is(err, ErrInvalidCommunity):
		code = "invalid_community"
	case errors.Is(err, ErrNotJoined):
		code = "not_joined"
	case errors.Is(err, ErrInvalidMessage):
		code = "invalid_message"
	case errors.Is(err, ErrUnknownOp):
		code = "unknown_op"
	}
	frame, ferr := transport.NewErrorFrame(code, err.Error())
	if ferr != nil {
		return
	}
	_ = session.Consume(ctx, frame)
}

type credentialsRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed body"})
		return
	}
	token, err := s.authSvc.Register(req.Email, req.DisplayName, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserAlreadyExists):
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		case errors.Is(err, ErrInvalidPassword):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "registration failed"})
		}
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed body"})
		return
	}
	token, err := s.authSvc.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "login failed"})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r); err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	community := domain.CommunityID(r.URL.Query().Get("community"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
			return
		}
		limit = n
	}

	var before time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "before must be RFC 3339"})
			return
		}
		before = parsed
	}

	messages, err := s.svc.History(r.Context(), community, limit, before)
	if err != nil {
		if errors.Is(err, ErrInvalidCommunity) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "history failed"})
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r); err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	q := search.Parse(r.URL.Query().Get("q"))
	messages, err := s.svc.SearchMessages(r.Context(), *q)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "search failed"})
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats())
}

func (s *Server) authorize(r *http.Request) (*auth.CustomClaims, error) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return nil, auth.ErrInvalidToken
	}
	return s.tokens.Verify(token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
