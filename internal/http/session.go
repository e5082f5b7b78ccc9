package http

import (
	"net/http"

	"fintrack/internal/chat"
	applog "fintrack/internal/log"
)

const sessionCookieName = "fintrack_session"

// session returns the caller's conversation, starting a new one and
// setting the cookie when the request carries no live session.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *chat.Session {
	var id string
	if c, err := r.Cookie(sessionCookieName); err == nil {
		id = c.Value
	}

	sess, created := s.sessions.Get(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.secureCookies || r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		applog.FromContext(r.Context()).WithComponent(applog.ComponentChat).DebugContext(r.Context(),
			"Session started", applog.NewFields().WithSessionID(sess.ID).ToSlice()...)
	} else {
		s.sessions.Touch(sess)
	}
	return sess
}
