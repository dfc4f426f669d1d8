package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"seiko-companion/internal/chat"
	"seiko-companion/internal/config"
	"seiko-companion/internal/logging"
	"seiko-companion/internal/persona"
	"seiko-companion/internal/store"
	"seiko-companion/internal/types"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 32 << 10

type Server struct {
	router  *chi.Mux
	store   *store.MemoryStore
	persona persona.Persona
	cfg     config.Config
	logger  *zap.Logger
	limiter *rateLimiter
}

// NewServer wires the HTTP surface. Every page session gets its own
// controller backed by the shared completer.
func NewServer(cfg config.Config, p persona.Persona, completer chat.Completer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ms := store.NewMemoryStore(cfg.SessionTTL, func() *chat.Controller {
		return chat.NewController(completer, chat.WithTypingDelay(cfg.TypingDelayMin, cfg.TypingDelayMax))
	})
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", "X-Session-Id"},
		ExposedHeaders:   []string{"X-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		router:  r,
		store:   ms,
		persona: p,
		cfg:     cfg,
		logger:  logger,
		limiter: newRateLimiter(cfg.ChatRatePerMin, 5),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Post("/api/session", s.handleNewSession)
	s.router.Delete("/api/session", s.handleEndSession)
	s.router.Get("/api/state", s.handleState)
	s.router.Put("/api/view", s.handleSetView)
	s.router.With(s.limiter.Middleware).Post("/api/chat", s.handleChat)
	// Site content
	s.router.Get("/api/gallery", s.handleGallery)
	s.router.Get("/api/about", s.handleAbout)
}

func (s *Server) Router() http.Handler { return s.router }

// RunJanitor expires idle page sessions and forgets idle rate-limit
// buckets until ctx ends.
func (s *Server) RunJanitor(ctx context.Context) {
	interval := s.cfg.SessionTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	go s.limiter.janitor(ctx, 10*time.Minute)
	s.store.Janitor(ctx, interval, func(removed int) {
		s.logger.Debug("expired page sessions", zap.Int("removed", removed), zap.Int("active", s.store.Len()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/session
// A page load. Any previous session of this browser is discarded so the
// new page starts with an empty log.
func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	if old := getSessionID(r); old != "" {
		s.store.Delete(old)
	}
	sid, ctrl := s.store.Create()
	s.logger.Debug("opened page session", zap.String("session", sid))
	SetSessionCookie(w, r, sid)
	w.Header().Set("X-Session-Id", sid)
	writeJSON(w, http.StatusCreated, s.stateResponse(sid, ctrl.Snapshot()))
}

// DELETE /api/session
// The page is closing. The log is dropped and the cookie cleared; a reply
// still outstanding completes on the detached controller and is discarded.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if sid := getSessionID(r); sid != "" {
		s.store.Delete(sid)
		s.logger.Debug("closed page session", zap.String("session", sid))
	}
	ClearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sid, ctrl := s.getOrCreateSession(w, r, "")
	writeJSON(w, http.StatusOK, s.stateResponse(sid, ctrl.Snapshot()))
}

// PUT /api/view  { "view": "gallery" }
func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	var req types.ViewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := chat.ParseView(req.View)
	if err != nil {
		writeError(w, http.StatusBadRequest, "view must be one of home, chat, gallery, about")
		return
	}
	sid, ctrl := s.getOrCreateSession(w, r, "")
	if err := ctrl.SetView(view); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse(sid, ctrl.Snapshot()))
}

// POST /api/chat  { "message": "hello" }
// The exchange is detached from the request: a client that disconnects or
// navigates away still finds the reply in the log afterwards.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sid, ctrl := s.getOrCreateSession(w, r, req.SessionID)

	ex, err := ctrl.Send(context.WithoutCancel(r.Context()), req.Message)
	// The idle clock restarts when the reply lands, not when it was asked for.
	s.store.Touch(sid)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is required")
		return
	case errors.Is(err, chat.ErrExchangeInFlight):
		writeError(w, http.StatusConflict, "Seiko is still replying to your last message")
		return
	case err != nil:
		s.logger.Error("chat exchange", zap.String("session", sid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "chat failed")
		return
	}
	if ex.Failed {
		s.logger.Warn("completion failed; sent fallback reply",
			zap.String("session", sid),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.Error(ex.Err))
	}
	writeJSON(w, http.StatusOK, types.ChatResponse{
		SessionID: sid,
		Reply:     ex.Reply,
		Failed:    ex.Failed,
		State:     s.stateResponse(sid, ctrl.Snapshot()),
	})
}

// GET /api/gallery
func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	items := s.persona.Gallery
	if items == nil {
		items = []persona.GalleryItem{}
	}
	writeJSON(w, http.StatusOK, types.GalleryResponse{Items: items})
}

// GET /api/about
func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	paragraphs := s.persona.About
	if paragraphs == nil {
		paragraphs = []string{}
	}
	writeJSON(w, http.StatusOK, types.AboutResponse{Name: s.persona.Name, Paragraphs: paragraphs})
}

func (s *Server) stateResponse(sid string, st chat.State) types.StateResponse {
	msgs := make([]types.Message, len(st.Messages))
	for i, m := range st.Messages {
		msgs[i] = types.Message{Role: chat.RoleAt(i), Text: m}
	}
	greeting := s.persona.Greeting
	if greeting == nil {
		greeting = []string{}
	}
	return types.StateResponse{
		SessionID: sid,
		View:      string(st.View),
		Greeting:  greeting,
		Messages:  msgs,
		Typing:    st.Typing,
	}
}

// decodeBody reads a JSON request body of at most maxBodyBytes. On failure
// it has already written the error response.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	} else {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, types.ErrorResponse{Error: msg})
}

// getSessionID retrieves the session ID from cookie or header/query parameter
func getSessionID(r *http.Request) string {
	if sid := SessionFromCookie(r); sid != "" {
		return sid
	}
	if sid := r.Header.Get("X-Session-Id"); sid != "" {
		return sid
	}
	return r.URL.Query().Get("sessionId")
}

// getOrCreateSession resolves the caller's page session, opening a new one
// (and setting the cookie) when it is missing or expired.
func (s *Server) getOrCreateSession(w http.ResponseWriter, r *http.Request, hint string) (string, *chat.Controller) {
	sid := getSessionID(r)
	if sid == "" {
		sid = hint
	}
	if ctrl, ok := s.store.Get(sid); ok {
		w.Header().Set("X-Session-Id", sid)
		return sid, ctrl
	}
	newID, ctrl := s.store.Create()
	s.logger.Debug("creating page session",
		zap.String("session", newID),
		zap.String("previous", sid),
		zap.String("path", r.URL.Path))
	SetSessionCookie(w, r, newID)
	w.Header().Set("X-Session-Id", newID)
	return newID, ctrl
}
