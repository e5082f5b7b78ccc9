package http

import (
	"context"
	"errors"
	"net/http"

	"fintrack/internal/chat"
	applog "fintrack/internal/log"
)

// pageData feeds index.html.
type pageData struct {
	Session    chat.View
	Categories []string
	Currency   string
	SheetURL   string
}

// chatResponse is the JSON form of a conversation step.
type chatResponse struct {
	Session chat.View `json:"session"`
	Error   string    `json:"error,omitempty"`
	Version uint64    `json:"version"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	s.renderPage(w, r, "index.html", pageData{
		Session:    sess.View(),
		Categories: s.controller.Categories().Names(),
		Currency:   s.controller.CurrencySymbol(),
		SheetURL:   s.sheetURL,
	})
}

// handleChatState returns the current conversation without changing it.
func (s *Server) handleChatState(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	s.respondChat(w, r, sess, nil, false)
}

func (s *Server) handleChatSubmit(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	p, ok := s.parseChatBody(w, r)
	if !ok {
		return
	}
	err := s.controller.Submit(r.Context(), sess, p.Get("text"))
	s.respondChat(w, r, sess, err, false)
}

// handleChatAmend edits the date or category of the pending transaction.
func (s *Server) handleChatAmend(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	p, ok := s.parseChatBody(w, r)
	if !ok {
		return
	}
	err := s.controller.Amend(r.Context(), sess, p.Get("date"), p.Get("category"))
	s.respondChat(w, r, sess, err, false)
}

func (s *Server) parseChatBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.logger.WarnContext(r.Context(), "Invalid chat request body", applog.FieldError, err)
		if wantsJSON(r) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return nil, false
		}
		BadRequestError("Invalid request.").Write(w)
		return nil, false
	}
	return p, true
}

func (s *Server) handleChatConfirm(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, s.controller.Confirm, true)
}

func (s *Server) handleChatCancel(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, s.controller.Cancel, false)
}

func (s *Server) handleChatAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, s.controller.Acknowledge, false)
}

func (s *Server) step(w http.ResponseWriter, r *http.Request, action func(context.Context, *chat.Session) error, writes bool) {
	sess := s.session(w, r)
	pending := sess.View().Pending
	err := action(r.Context(), sess)
	recorded := writes && err == nil && pending != nil
	if recorded {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogTransactionRecorded(r.Context(), *pending, s.controller.Ledger().Version())
	}
	s.respondChat(w, r, sess, err, recorded)
}

// respondChat renders the conversation after a step. Pipeline failures are
// part of the conversation (the session sits in the error state with a
// notice), so they still answer 200. Only actions the current state does
// not allow are reported as 409 to JSON clients.
func (s *Server) respondChat(w http.ResponseWriter, r *http.Request, sess *chat.Session, err error, recorded bool) {
	view := sess.View()
	invalid := errors.Is(err, chat.ErrInvalidTransition)
	version := s.controller.Ledger().Version()

	if wantsJSON(r) {
		status := http.StatusOK
		if invalid {
			status = http.StatusConflict
		}
		writeJSON(w, status, chatResponse{Session: view, Error: chat.UserMessage(err), Version: version})
		return
	}

	body, ok := s.render(w, r, "conversation", view)
	if !ok {
		return
	}
	resp := NewHTMXResponse().BodyHTML(string(body))
	switch {
	case invalid:
		resp.TriggerErrorNotification(chat.UserMessage(err))
	case err != nil && view.State == chat.StateConfirming:
		// A rejected amendment keeps the pending card up.
		resp.TriggerErrorNotification(view.Notice)
	case recorded:
		resp.TriggerLedgerUpdated(version).TriggerSuccessNotification("Transaction saved")
	case err == nil && view.State == chat.StateConfirming:
		resp.TriggerFormReset()
	}
	resp.Write(w)
}
