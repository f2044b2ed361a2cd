package conversation

import (
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GeneralSummary is the summary of a conversation without any topic.
const GeneralSummary = "General Conversation"

// Entry is one message in the conversation flow.
type Entry struct {
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Topic     Topic     `json:"topic"`
}

// State is the dialogue state of one session. The current_topic and
// message_count field names are read by prompt builders and must not change.
type State struct {
	CurrentTopic         Topic   `json:"current_topic"`
	MessageCount         int     `json:"message_count"`
	LastUserMessage      string  `json:"last_user_message"`
	LastAssistantMessage string  `json:"last_assistant_message"`
	Flow                 []Entry `json:"conversation_flow"`
}

func (s State) clone() State {
	cp := s
	cp.Flow = append([]Entry(nil), s.Flow...)
	return cp
}

// Tracker maintains the State of a single session. It is not safe for
// concurrent use; a session owns its Tracker.
type Tracker struct {
	rules []Rule
	now   func() time.Time
	state State
}

// NewTracker creates a Tracker using DefaultRules.
func NewTracker() *Tracker {
	return NewTrackerWithRules(DefaultRules(), time.Now)
}

// NewTrackerWithRules creates a Tracker with custom rules and clock.
func NewTrackerWithRules(rules []Rule, now func() time.Time) *Tracker {
	return &Tracker{rules: rules, now: now}
}

// AddUserMessage records a user message. The current topic changes only when
// the message matches a rule; the entry is tagged with the detected topic,
// which is empty when nothing matched.
func (t *Tracker) AddUserMessage(text string) Topic {
	topic, ok := Detect(t.rules, text)
	if ok {
		t.state.CurrentTopic = topic
	}
	t.state.LastUserMessage = text
	t.state.MessageCount++
	t.state.Flow = append(t.state.Flow, Entry{
		Role:      RoleUser,
		Message:   text,
		Timestamp: t.now(),
		Topic:     topic,
	})
	return topic
}

// AddAssistantMessage records an assistant reply tagged with the current topic.
func (t *Tracker) AddAssistantMessage(text string) {
	t.state.LastAssistantMessage = text
	t.state.Flow = append(t.state.Flow, Entry{
		Role:      RoleAssistant,
		Message:   text,
		Timestamp: t.now(),
		Topic:     t.state.CurrentTopic,
	})
}

// State returns a copy of the current state.
func (t *Tracker) State() State { return t.state.clone() }

// CurrentTopic returns the current topic, if any.
func (t *Tracker) CurrentTopic() (Topic, bool) {
	return t.state.CurrentTopic, t.state.CurrentTopic != TopicNone
}

// TopicMessageCount counts flow entries tagged with the current topic.
func (t *Tracker) TopicMessageCount() int {
	if t.state.CurrentTopic == TopicNone {
		return 0
	}
	n := 0
	for _, e := range t.state.Flow {
		if e.Topic == t.state.CurrentTopic {
			n++
		}
	}
	return n
}

// Reset restores the empty state.
func (t *Tracker) Reset() { t.state = State{} }

// Restore replaces the state, e.g. with one loaded from storage.
func (t *Tracker) Restore(s State) { t.state = s.clone() }

// Summary lists the distinct topics of the conversation in the order they
// first appeared, e.g. "Refund Request, Order Tracking".
func (t *Tracker) Summary() string {
	return Summarize(t.state)
}

// Summarize is Tracker.Summary for a detached State.
func Summarize(s State) string {
	seen := make(map[Topic]bool)
	var labels []string
	for _, e := range s.Flow {
		if e.Topic == TopicNone || seen[e.Topic] {
			continue
		}
		seen[e.Topic] = true
		labels = append(labels, e.Topic.Label())
	}
	if len(labels) == 0 {
		return GeneralSummary
	}
	return strings.Join(labels, ", ")
}
