package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/KaramelBytes/sheetqa/internal/assistant"
)

type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*assistant.Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*assistant.Session)}
}

func (st *sessionStore) create() *assistant.Session {
	s := assistant.NewSession()
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

func (st *sessionStore) get(id string) (*assistant.Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *sessionStore) remove(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return false
	}
	delete(st.sessions, id)
	return true
}

func (st *sessionStore) len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

type ctxKey struct{}

// withSession resolves {id} into a session on the request context.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, ok := s.sessions.get(id)
		if !ok {
			writeErrorResponse(w, http.StatusNotFound, "session not found: "+id)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *assistant.Session {
	return r.Context().Value(ctxKey{}).(*assistant.Session)
}
