package composer

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/quickdeliver/qdsupport/internal/conversation"
	"github.com/quickdeliver/qdsupport/internal/orders"
	"github.com/quickdeliver/qdsupport/internal/proxy"
	"github.com/quickdeliver/qdsupport/internal/recommend"
)

func flow(n int) []conversation.Entry {
	out := make([]conversation.Entry, n)
	for i := range out {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		out[i] = conversation.Entry{Role: role, Message: fmt.Sprintf("m%d", i), Timestamp: time.Unix(int64(i), 0)}
	}
	return out
}

func TestCompose_Defaults(t *testing.T) {
	c := New("", 0)
	req := c.Compose(Input{State: conversation.State{Flow: flow(1)}})

	if req.Model != proxy.DefaultModel {
		t.Errorf("Model = %q, want %q", req.Model, proxy.DefaultModel)
	}
	if req.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", req.Temperature)
	}
	if req.MaxTokens != 800 {
		t.Errorf("MaxTokens = %d, want 800", req.MaxTokens)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", req.Messages[0].Role)
	}
	if req.Messages[1].Role != "user" || req.Messages[1].Content != "m0" {
		t.Errorf("history message = %+v", req.Messages[1])
	}
}

func TestCompose_HistoryTruncatedToLastTen(t *testing.T) {
	c := New("test-model", 0)
	req := c.Compose(Input{State: conversation.State{Flow: flow(14)}})

	if len(req.Messages) != 11 {
		t.Fatalf("expected system + 10 history messages, got %d", len(req.Messages))
	}
	if req.Messages[1].Content != "m4" {
		t.Errorf("oldest kept message = %q, want m4", req.Messages[1].Content)
	}
	if req.Messages[10].Content != "m13" {
		t.Errorf("newest message = %q, want m13", req.Messages[10].Content)
	}
}

func TestSystemPrompt_UserAndState(t *testing.T) {
	c := New("test-model", 0)
	prompt := c.SystemPrompt(Input{
		User:  UserInfo{Name: "Asha", Subscription: "Premium", TotalOrders: 12},
		State: conversation.State{CurrentTopic: conversation.TopicRefundRequest, MessageCount: 3},
	})

	for _, want := range []string{
		"- Name: Asha",
		"- Subscription: Premium",
		"- Total Orders: 12",
		"- Topic: refund_request",
		"- Message Count: 3",
		"No recent orders",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestSystemPrompt_GeneralTopicWhenNone(t *testing.T) {
	c := New("test-model", 0)
	prompt := c.SystemPrompt(Input{})

	if !strings.Contains(prompt, "- Topic: General\n") {
		t.Errorf("expected General topic:\n%s", prompt)
	}
	if !strings.Contains(prompt, "- Name: N/A") {
		t.Errorf("expected N/A for missing name:\n%s", prompt)
	}
}

func TestFormatRecentOrders(t *testing.T) {
	recent := []orders.Order{
		{Number: "QD4", Restaurant: "KFC", Total: 450, Status: orders.StatusDelivered},
		{Number: "QD3", Restaurant: "Subway", Total: 320.5, Status: orders.StatusInTransit},
		{Number: "QD2", Restaurant: "Taco Bell", Total: 200, Status: orders.StatusCancelled},
		{Number: "QD1", Restaurant: "Domino's", Total: 600, Status: orders.StatusDelivered},
	}

	got := FormatRecentOrders(recent)
	want := "- Order #QD4: KFC - ₹450 (Delivered)\n" +
		"- Order #QD3: Subway - ₹320.50 (In Transit)\n" +
		"- Order #QD2: Taco Bell - ₹200 (Cancelled)"
	if got != want {
		t.Errorf("FormatRecentOrders =\n%s\nwant\n%s", got, want)
	}
}

func TestSystemPrompt_ProfileInjected(t *testing.T) {
	c := New("test-model", 0)
	prompt := c.SystemPrompt(Input{ProfileSummary: "Prefers Italian (60%)."})

	if !strings.Contains(prompt, "[Customer Profile]\nPrefers Italian (60%).") {
		t.Errorf("profile missing:\n%s", prompt)
	}
}

func TestSystemPrompt_RecommendationsOnlyForRecommendationTopic(t *testing.T) {
	recs := []recommend.Record{
		{Name: "Mainland China", Cuisine: "Chinese", Rating: 4.3, DeliveryTime: "35-45 min", Score: 0.4},
		{Name: "Wow! Momo", Cuisine: "Tibetan", Rating: 4.1, DeliveryTime: "20-30 min", Score: 0.9},
	}
	c := New("test-model", 0)

	prompt := c.SystemPrompt(Input{
		State:           conversation.State{CurrentTopic: conversation.TopicOrderTracking},
		Recommendations: recs,
	})
	if strings.Contains(prompt, "[Suggested Restaurants]") {
		t.Error("recommendations injected for non-recommendation topic")
	}

	prompt = c.SystemPrompt(Input{
		State:           conversation.State{CurrentTopic: conversation.TopicRecommendations},
		Recommendations: recs,
	})
	momo := strings.Index(prompt, "- Wow! Momo (Tibetan, rated 4.1, 20-30 min)")
	mainland := strings.Index(prompt, "- Mainland China (Chinese, rated 4.3, 35-45 min)")
	if momo < 0 || mainland < 0 {
		t.Fatalf("recommendations missing:\n%s", prompt)
	}
	if momo > mainland {
		t.Error("recommendations should be listed by score descending")
	}
}

func TestSystemPrompt_RecommendationBudget(t *testing.T) {
	var recs []recommend.Record
	for i := range 50 {
		recs = append(recs, recommend.Record{
			Name:         fmt.Sprintf("Restaurant %02d with a fairly long name", i),
			Cuisine:      "Mixed",
			Rating:       4.0,
			DeliveryTime: "30-40 min",
			Score:        float64(50 - i),
		})
	}
	c := New("test-model", 100)
	prompt := c.SystemPrompt(Input{
		State:           conversation.State{CurrentTopic: conversation.TopicRecommendations},
		Recommendations: recs,
	})

	if !strings.Contains(prompt, "Restaurant 00") {
		t.Error("highest scoring recommendation should be kept")
	}
	if strings.Contains(prompt, "Restaurant 49") {
		t.Error("budget should drop low scoring recommendations")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
