// Package live hosts quiz sessions over websockets. The server owns the session
// state; the browser only renders the snapshots it is sent and forwards the
// learner's actions.
package live

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/algodrill/algodrill/internal/attempt"
	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/rbac"
	"github.com/algodrill/algodrill/internal/session"
	"github.com/algodrill/algodrill/internal/sessioncache"
)

type Handler struct {
	svc      *attempt.Service
	cache    *sessioncache.Cache
	opts     []session.Option
	upgrader websocket.Upgrader
}

type Option func(*Handler)

// WithCache enables resuming sessions across reconnects.
func WithCache(c *sessioncache.Cache) Option { return func(h *Handler) { h.cache = c } }

// WithSessionOptions passes options to every session the handler creates.
func WithSessionOptions(opts ...session.Option) Option {
	return func(h *Handler) { h.opts = append(h.opts, opts...) }
}

// WithAllowedOrigins restricts websocket upgrades to the given origins. Without it
// any origin is accepted.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || allowed[o]
		}
	}
}

func NewHandler(svc *attempt.Service, opts ...Option) *Handler {
	h := &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP handles GET /ws/quizzes/{quizID}. Pass ?fresh=1 to discard a saved
// session and start over.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := authmw.SubjectFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	quizID := chi.URLParam(r, "quizID")
	store := h.svc.Store()

	quiz, err := store.GetQuiz(r.Context(), quizID)
	if errors.Is(err, attempt.ErrNotFound) || (err == nil && !rbac.Visible(r.Context(), userID, quiz.IsPublic, quiz.CreatedBy)) {
		http.Error(w, "quiz not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	questions, err := store.QuizQuestions(r.Context(), quizID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	key := sessioncache.Key(userID, quizID)
	var prev session.State
	if r.URL.Query().Get("fresh") == "" {
		prev = h.resume(r.Context(), key, quizID)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := session.Restore(prev, quizID, questions, quiz.TimeLimit, h.opts...)
	defer sess.Close()

	c := &client{
		conn:   conn,
		sess:   sess,
		svc:    h.svc,
		cache:  h.cache,
		userID: userID,
		quizID: quizID,
		key:    key,
		send:   make(chan []byte, 32),
		done:   make(chan struct{}),
	}

	changes := sess.Subscribe()
	go c.writePump()
	go c.watch(ctx, changes)

	st := sess.Snapshot()
	c.sendMessage(MessageTypeState, st.View())
	if st.Status == session.StatusSubmitted {
		c.trySubmit(ctx)
	}
	sess.Start(ctx)

	c.readPump(ctx)
}

// resume loads a saved session that can still be continued.
func (h *Handler) resume(ctx context.Context, key, quizID string) session.State {
	st, err := h.cache.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, sessioncache.ErrMiss) {
			log.Printf("live: resume %s: %v", key, err)
		}
		return session.State{}
	}
	if st.QuizID != quizID || st.Status == session.StatusReviewing {
		return session.State{}
	}
	return st
}
