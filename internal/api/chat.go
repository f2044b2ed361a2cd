package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quickdeliver/qdsupport/internal/conversation"
	"github.com/quickdeliver/qdsupport/internal/storage"
)

const defaultHistoryLimit = 20

type createSessionRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

type sendMessageRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

type sessionView struct {
	SessionID         string             `json:"session_id"`
	Username          string             `json:"username"`
	CreatedAt         time.Time          `json:"created_at"`
	Topic             conversation.Topic `json:"topic"`
	TopicMessageCount int                `json:"topic_message_count"`
	Summary           string             `json:"summary"`
	State             conversation.State `json:"state"`
}

func viewSession(sess *conversation.Session) sessionView {
	v := sessionView{
		SessionID: sess.ID,
		Username:  sess.Username,
		CreatedAt: sess.CreatedAt,
	}
	sess.Do(func(t *conversation.Tracker) {
		v.State = t.State()
		v.Topic, _ = t.CurrentTopic()
		v.TopicMessageCount = t.TopicMessageCount()
		v.Summary = t.Summary()
	})
	return v
}

// session resolves the {id} path parameter. A session evicted from memory is
// rebuilt from its last saved snapshot.
func (h *handlers) session(w http.ResponseWriter, r *http.Request) (*conversation.Session, bool) {
	id := chi.URLParam(r, "id")
	if sess, ok := h.deps.Sessions.Get(id); ok {
		return sess, true
	}
	cs, err := h.deps.Store.GetChatSession(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found_error", "chat session %s not found", id)
		return nil, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "loading chat session: %v", err)
		return nil, false
	}
	var st conversation.State
	if err := json.Unmarshal([]byte(cs.StateJSON), &st); err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "decoding chat session %s: %v", id, err)
		return nil, false
	}
	return h.deps.Sessions.Restore(cs.ID, cs.Username, cs.CreatedAt, st), true
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess := h.deps.Sessions.Create(req.Username)
	writeJSON(w, http.StatusCreated, viewSession(sess))
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewSession(sess))
}

func (h *handlers) resetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Do(func(t *conversation.Tracker) { t.Reset() })
	writeJSON(w, http.StatusOK, viewSession(sess))
}

func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	reply, err := h.deps.Assistant.Handle(r.Context(), sess, req.Message)
	if err != nil {
		httpError(w, http.StatusServiceUnavailable, "server_error", "chat turn aborted: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type historyEntry struct {
	SessionID    string          `json:"session_id"`
	MessageCount int             `json:"message_count"`
	Summary      string          `json:"summary"`
	State        json.RawMessage `json:"state"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (h *handlers) chatHistory(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "username")
	limit, err := queryLimit(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	sessions, err := h.deps.Store.ListChatSessions(user, limit)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "listing chat history: %v", err)
		return
	}
	out := make([]historyEntry, 0, len(sessions))
	for _, cs := range sessions {
		state := json.RawMessage(cs.StateJSON)
		if !json.Valid(state) {
			state = json.RawMessage("null")
		}
		out = append(out, historyEntry{
			SessionID:    cs.ID,
			MessageCount: cs.MessageCount,
			Summary:      cs.Summary,
			State:        state,
			CreatedAt:    cs.CreatedAt,
			UpdatedAt:    cs.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": user, "sessions": out})
}

func (h *handlers) deleteChatHistory(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "username")
	deleted, err := h.deps.Store.DeleteChatSessions(user)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "deleting chat history: %v", err)
		return
	}
	closed := h.deps.Sessions.DeleteUser(user)
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":         deleted,
		"sessions_closed": closed,
	})
}
