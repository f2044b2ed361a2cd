// Package pipeline runs one support chat turn: topic tracking, prompt
// composition, the LLM call and persistence of the session snapshot.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/quickdeliver/qdsupport/internal/composer"
	"github.com/quickdeliver/qdsupport/internal/conversation"
	"github.com/quickdeliver/qdsupport/internal/metrics"
	"github.com/quickdeliver/qdsupport/internal/orders"
	"github.com/quickdeliver/qdsupport/internal/proxy"
	"github.com/quickdeliver/qdsupport/internal/recommend"
	"github.com/quickdeliver/qdsupport/internal/storage"
)

// ApologyReply is sent when the LLM cannot produce an answer.
const ApologyReply = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

const (
	defaultLLMTimeout     = 30 * time.Second
	recommendationsInTurn = 5
)

// Completer produces an assistant reply for a chat request.
type Completer interface {
	Complete(ctx context.Context, req proxy.ChatRequest) (string, error)
}

// Store is the account data and chat persistence a turn needs.
type Store interface {
	GetUser(username string) (storage.User, error)
	ListOrders(username string) ([]orders.Order, error)
	SaveChatSession(cs storage.ChatSession) error
}

// ProfileSummarizer describes a user's ordering habits in a sentence or two.
type ProfileSummarizer interface {
	Summary(username string) (string, error)
}

// Recommender supplies hybrid recommendations for the prompt.
type Recommender interface {
	Hybrid(user string, n int) []recommend.Record
}

// Reply is the outcome of one turn.
type Reply struct {
	SessionID         string             `json:"session_id"`
	Message           string             `json:"message"`
	Topic             conversation.Topic `json:"topic"`
	TopicMessageCount int                `json:"topic_message_count"`
	MessageCount      int                `json:"message_count"`
	Summary           string             `json:"summary"`
	Degraded          bool               `json:"degraded,omitempty"`
}

// Assistant orchestrates chat turns.
type Assistant struct {
	llm        Completer
	store      Store
	profiles   ProfileSummarizer
	recommend  Recommender
	composer   *composer.Composer
	llmTimeout time.Duration
	logger     *slog.Logger
}

// NewAssistant wires an Assistant. profiles and rec may be nil.
func NewAssistant(llm Completer, store Store, profiles ProfileSummarizer, rec Recommender, comp *composer.Composer, llmTimeout time.Duration) *Assistant {
	if llmTimeout <= 0 {
		llmTimeout = defaultLLMTimeout
	}
	return &Assistant{
		llm:        llm,
		store:      store,
		profiles:   profiles,
		recommend:  rec,
		composer:   comp,
		llmTimeout: llmTimeout,
		logger:     slog.Default().With("component", "assistant"),
	}
}

// Handle runs one turn for sess. Turns of the same session are serialized.
// LLM failures are absorbed into ApologyReply; only a canceled context is
// returned as an error.
func (a *Assistant) Handle(ctx context.Context, sess *conversation.Session, text string) (Reply, error) {
	var (
		reply Reply
		err   error
	)
	sess.Do(func(t *conversation.Tracker) {
		reply, err = a.turn(ctx, sess, t, text)
	})
	return reply, err
}

func (a *Assistant) turn(ctx context.Context, sess *conversation.Session, t *conversation.Tracker, text string) (Reply, error) {
	prev := t.State()
	topic := t.AddUserMessage(text)

	req := a.composer.Compose(a.buildInput(sess.Username, t.State()))

	llmCtx, cancel := context.WithTimeout(ctx, a.llmTimeout)
	answer, err := a.llm.Complete(llmCtx, req)
	cancel()

	degraded := false
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// The client is gone; a retry must not see the message twice.
			t.Restore(prev)
			return Reply{}, ctx.Err()
		}
		a.logger.Warn("llm completion failed, replying with apology", "session_id", sess.ID, "error", err)
		answer = ApologyReply
		degraded = true
	}

	metrics.ChatMessages.WithLabelValues(conversation.RoleUser, topicLabel(topic)).Inc()
	t.AddAssistantMessage(answer)
	current, _ := t.CurrentTopic()
	metrics.ChatMessages.WithLabelValues(conversation.RoleAssistant, topicLabel(current)).Inc()

	state := t.State()
	summary := conversation.Summarize(state)
	a.persist(sess, state, summary)

	return Reply{
		SessionID:         sess.ID,
		Message:           answer,
		Topic:             current,
		TopicMessageCount: t.TopicMessageCount(),
		MessageCount:      state.MessageCount,
		Summary:           summary,
		Degraded:          degraded,
	}, nil
}

// buildInput gathers prompt data. Every lookup degrades to an empty section.
func (a *Assistant) buildInput(username string, state conversation.State) composer.Input {
	in := composer.Input{State: state}

	if u, err := a.store.GetUser(username); err == nil {
		in.User.Name = u.Name
		in.User.Subscription = u.Subscription
	} else if !errors.Is(err, storage.ErrNotFound) {
		a.logger.Warn("loading user failed", "username", username, "error", err)
	}

	if all, err := a.store.ListOrders(username); err == nil {
		in.User.TotalOrders = len(all)
		for i := len(all) - 1; i >= 0 && len(in.RecentOrders) < 3; i-- {
			in.RecentOrders = append(in.RecentOrders, all[i])
		}
	} else {
		a.logger.Warn("loading orders failed", "username", username, "error", err)
	}

	if a.profiles != nil {
		if s, err := a.profiles.Summary(username); err == nil {
			in.ProfileSummary = s
		} else {
			a.logger.Warn("loading profile summary failed", "username", username, "error", err)
		}
	}

	if a.recommend != nil && state.CurrentTopic == conversation.TopicRecommendations {
		in.Recommendations = a.recommend.Hybrid(username, recommendationsInTurn)
	}
	return in
}

func (a *Assistant) persist(sess *conversation.Session, state conversation.State, summary string) {
	raw, err := json.Marshal(state)
	if err != nil {
		a.logger.Error("encoding session state", "session_id", sess.ID, "error", err)
		return
	}
	if err := a.store.SaveChatSession(storage.ChatSession{
		ID:           sess.ID,
		Username:     sess.Username,
		StateJSON:    string(raw),
		MessageCount: state.MessageCount,
		Summary:      summary,
		CreatedAt:    sess.CreatedAt,
	}); err != nil {
		a.logger.Warn("saving chat session failed", "session_id", sess.ID, "error", err)
	}
}

func topicLabel(t conversation.Topic) string {
	if t == conversation.TopicNone {
		return "none"
	}
	return string(t)
}
