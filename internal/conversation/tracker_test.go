package conversation

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func newTestTracker() *Tracker {
	return NewTrackerWithRules(DefaultRules(), fixedClock())
}

func TestDetect(t *testing.T) {
	tests := []struct {
		msg  string
		want Topic
		ok   bool
	}{
		{"I want a REFUND for order 123", TopicRefundRequest, true},
		{"please cancel order 42", TopicRefundRequest, true},
		{"where is my order?", TopicOrderTracking, true},
		{"Can you track my delivery", TopicOrderTracking, true},
		{"why was I charged twice", TopicBillingInquiry, true},
		{"suggest something spicy", TopicRecommendations, true},
		{"reset my password", TopicAccountManagement, true},
		{"track my refund", TopicRefundRequest, true}, // refund outranks tracking
		{"my bill for the food", TopicBillingInquiry, true},
		{"hello there", TopicNone, false},
		{"", TopicNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got, ok := Detect(DefaultRules(), tt.msg)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Detect(%q) = %q, %v; want %q, %v", tt.msg, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDetect_CustomRuleOrder(t *testing.T) {
	rules := []Rule{
		KeywordRule(TopicOrderTracking, "track"),
		KeywordRule(TopicRefundRequest, "refund"),
	}
	got, _ := Detect(rules, "track my refund")
	if got != TopicOrderTracking {
		t.Errorf("Detect = %q, want %q", got, TopicOrderTracking)
	}
}

func TestAddUserMessage_TopicSticks(t *testing.T) {
	tr := newTestTracker()

	tr.AddUserMessage("I want a refund for order 123")
	if topic, _ := tr.CurrentTopic(); topic != TopicRefundRequest {
		t.Fatalf("CurrentTopic = %q, want %q", topic, TopicRefundRequest)
	}

	detected := tr.AddUserMessage("thanks")
	if detected != TopicNone {
		t.Errorf("detected = %q, want none", detected)
	}
	if topic, ok := tr.CurrentTopic(); topic != TopicRefundRequest || !ok {
		t.Errorf("CurrentTopic = %q, %v; want %q, true", topic, ok, TopicRefundRequest)
	}

	st := tr.State()
	if st.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", st.MessageCount)
	}
	if st.LastUserMessage != "thanks" {
		t.Errorf("LastUserMessage = %q, want %q", st.LastUserMessage, "thanks")
	}
	if st.Flow[1].Topic != TopicNone {
		t.Errorf("unmatched entry topic = %q, want none", st.Flow[1].Topic)
	}
}

func TestAddAssistantMessage_UsesCurrentTopic(t *testing.T) {
	tr := newTestTracker()
	tr.AddUserMessage("where is my order")
	tr.AddAssistantMessage("It is out for refund processing") // not re-detected

	st := tr.State()
	if len(st.Flow) != 2 {
		t.Fatalf("flow length = %d, want 2", len(st.Flow))
	}
	last := st.Flow[1]
	if last.Role != RoleAssistant || last.Topic != TopicOrderTracking {
		t.Errorf("assistant entry = %+v, want role assistant topic order_tracking", last)
	}
	if st.MessageCount != 1 {
		t.Errorf("MessageCount = %d, want 1 (assistant messages are not counted)", st.MessageCount)
	}
	if st.LastAssistantMessage != "It is out for refund processing" {
		t.Errorf("LastAssistantMessage = %q", st.LastAssistantMessage)
	}
	if !last.Timestamp.After(st.Flow[0].Timestamp) {
		t.Error("timestamps should increase")
	}
}

func TestTopicMessageCount(t *testing.T) {
	tr := newTestTracker()
	if n := tr.TopicMessageCount(); n != 0 {
		t.Errorf("TopicMessageCount with no topic = %d, want 0", n)
	}

	tr.AddUserMessage("hi")                 // none
	tr.AddAssistantMessage("hello")         // none
	tr.AddUserMessage("my payment failed")  // billing
	tr.AddAssistantMessage("sorry")         // billing
	tr.AddUserMessage("ok")                 // none, topic stays billing
	tr.AddAssistantMessage("anything else") // billing

	if n := tr.TopicMessageCount(); n != 3 {
		t.Errorf("TopicMessageCount = %d, want 3", n)
	}
}

func TestReset(t *testing.T) {
	tr := newTestTracker()
	tr.AddUserMessage("refund please")
	tr.AddAssistantMessage("sure")
	tr.Reset()

	if !reflect.DeepEqual(tr.State(), State{}) {
		t.Errorf("State after Reset = %+v, want empty", tr.State())
	}
	if _, ok := tr.CurrentTopic(); ok {
		t.Error("CurrentTopic should be unset after Reset")
	}
}

func TestSummary(t *testing.T) {
	tr := newTestTracker()
	if s := tr.Summary(); s != GeneralSummary {
		t.Errorf("empty Summary = %q, want %q", s, GeneralSummary)
	}

	tr.AddUserMessage("hello")
	if s := tr.Summary(); s != GeneralSummary {
		t.Errorf("topicless Summary = %q, want %q", s, GeneralSummary)
	}

	tr.AddUserMessage("refund my order")
	tr.AddUserMessage("also check my bill")
	tr.AddUserMessage("refund again")
	if s, want := tr.Summary(), "Refund Request, Billing Inquiry"; s != want {
		t.Errorf("Summary = %q, want %q", s, want)
	}
}

func TestStateJSON_FieldNames(t *testing.T) {
	tr := newTestTracker()
	b, err := json.Marshal(tr.State())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"current_topic":null`) || !strings.Contains(string(b), `"message_count":0`) {
		t.Errorf("unexpected JSON: %s", b)
	}

	tr.AddUserMessage("track my order")
	b, _ = json.Marshal(tr.State())
	if !strings.Contains(string(b), `"current_topic":"order_tracking"`) || !strings.Contains(string(b), `"message_count":1`) {
		t.Errorf("unexpected JSON: %s", b)
	}

	var back State
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored := newTestTracker()
	restored.Restore(back)
	if n := restored.TopicMessageCount(); n != 1 {
		t.Errorf("restored TopicMessageCount = %d, want 1", n)
	}
}

func TestStateIsCopy(t *testing.T) {
	tr := newTestTracker()
	tr.AddUserMessage("hello")
	st := tr.State()
	st.Flow[0].Message = "changed"
	if tr.State().Flow[0].Message != "hello" {
		t.Error("State() must return a copy")
	}
}

func TestSessions(t *testing.T) {
	reg := NewSessions(nil)
	a := reg.Create("alice")
	b := reg.Create("alice")
	c := reg.Create("bob")

	if a.ID == b.ID {
		t.Fatal("session IDs must be unique")
	}
	got, ok := reg.Get(c.ID)
	if !ok || got != c {
		t.Fatalf("Get(%s) = %v, %v", c.ID, got, ok)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Do(func(tr *Tracker) { tr.AddUserMessage("refund") })
		}()
	}
	wg.Wait()
	if n := a.State().MessageCount; n != 50 {
		t.Errorf("MessageCount = %d, want 50", n)
	}

	if n := reg.DeleteUser("alice"); n != 2 {
		t.Errorf("DeleteUser = %d, want 2", n)
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
	if _, ok := reg.Get(a.ID); ok {
		t.Error("alice's session should be gone")
	}
}

func TestSessions_EvictIdle(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	reg := NewSessions(nil)
	reg.now = func() time.Time { return now }

	idle := reg.Create("alice")
	busy := reg.Create("bob")
	looked := reg.Create("carol")

	now = now.Add(20 * time.Minute)
	busy.Do(func(tr *Tracker) { tr.AddUserMessage("where is my order") })
	reg.Get(looked.ID)

	now = now.Add(15 * time.Minute)
	if n := reg.EvictIdle(30 * time.Minute); n != 1 {
		t.Fatalf("EvictIdle = %d, want 1", n)
	}
	if _, ok := reg.Get(idle.ID); ok {
		t.Error("idle session should be evicted")
	}
	if _, ok := reg.Get(busy.ID); !ok {
		t.Error("active session evicted")
	}
	if !busy.LastActive().Equal(now) {
		t.Errorf("LastActive = %v, want %v", busy.LastActive(), now)
	}
	if reg.Len() != 2 {
		t.Errorf("Len = %d, want 2", reg.Len())
	}
}

func TestSessions_RestoreAfterEviction(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	reg := NewSessions(newTestTracker)
	reg.now = func() time.Time { return now }

	s := reg.Create("alice")
	s.Do(func(tr *Tracker) {
		tr.AddUserMessage("I want a refund")
		tr.AddAssistantMessage("Sure, which order?")
	})
	saved, err := json.Marshal(s.State())
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Hour)
	reg.EvictIdle(time.Minute)
	if reg.Len() != 0 {
		t.Fatalf("Len = %d, want 0", reg.Len())
	}

	var st State
	if err := json.Unmarshal(saved, &st); err != nil {
		t.Fatal(err)
	}
	back := reg.Restore(s.ID, "alice", s.CreatedAt, st)
	if back.ID != s.ID || back.Username != "alice" {
		t.Errorf("restored %s/%s", back.ID, back.Username)
	}
	got := back.State()
	if got.MessageCount != 1 || got.CurrentTopic != TopicRefundRequest || len(got.Flow) != 2 {
		t.Errorf("restored state = %+v", got)
	}
	back.Do(func(tr *Tracker) { tr.AddUserMessage("the pizza one") })
	if n := back.State().MessageCount; n != 2 {
		t.Errorf("MessageCount = %d, want 2", n)
	}

	if again := reg.Restore(s.ID, "alice", s.CreatedAt, State{}); again != back {
		t.Error("Restore should keep the live session")
	}
}

func TestSessions_RunEvictionStops(t *testing.T) {
	reg := NewSessions(nil)
	reg.Create("alice")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.RunEviction(ctx, time.Millisecond, time.Nanosecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for reg.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("session never evicted")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunEviction did not return after cancel")
	}
}

func TestTopicLabel(t *testing.T) {
	if got := TopicAccountManagement.Label(); got != "Account Management" {
		t.Errorf("Label = %q", got)
	}
}
