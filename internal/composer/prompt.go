// Package composer builds the support assistant's chat request: a system
// prompt carrying the user's account, conversation state, recent orders and
// (optionally) profile and recommendations, followed by recent history.
package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quickdeliver/qdsupport/internal/conversation"
	"github.com/quickdeliver/qdsupport/internal/orders"
	"github.com/quickdeliver/qdsupport/internal/proxy"
	"github.com/quickdeliver/qdsupport/internal/recommend"
)

const (
	defaultMaxContextTokens = 1500
	defaultHistoryLimit     = 10
	recentOrderCount        = 3
	generalTopic            = "General"
)

// UserInfo is the account data shown to the assistant.
type UserInfo struct {
	Name         string
	Subscription string
	TotalOrders  int
}

// Input is everything the system prompt is built from.
type Input struct {
	User            UserInfo
	State           conversation.State
	RecentOrders    []orders.Order // newest first
	ProfileSummary  string
	Recommendations []recommend.Record
}

// Composer assembles chat requests for the support assistant.
type Composer struct {
	Model            string
	Temperature      float64
	MaxTokens        int
	HistoryLimit     int
	MaxContextTokens int
}

// New creates a Composer for model. If maxContextTokens <= 0, the default
// budget for optional sections is used.
func New(model string, maxContextTokens int) *Composer {
	if model == "" {
		model = proxy.DefaultModel
	}
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{
		Model:            model,
		Temperature:      proxy.DefaultTemperature,
		MaxTokens:        proxy.DefaultMaxTokens,
		HistoryLimit:     defaultHistoryLimit,
		MaxContextTokens: maxContextTokens,
	}
}

// Compose builds the request: the system prompt followed by the last
// HistoryLimit entries of the conversation flow.
func (c *Composer) Compose(in Input) proxy.ChatRequest {
	msgs := []proxy.Message{{Role: "system", Content: c.SystemPrompt(in)}}

	flow := in.State.Flow
	if len(flow) > c.HistoryLimit {
		flow = flow[len(flow)-c.HistoryLimit:]
	}
	for _, e := range flow {
		msgs = append(msgs, proxy.Message{Role: e.Role, Content: e.Message})
	}

	return proxy.ChatRequest{
		Model:       c.Model,
		Messages:    msgs,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		TopP:        1,
	}
}

// SystemPrompt renders the system message for in.
func (c *Composer) SystemPrompt(in Input) string {
	topic := generalTopic
	if in.State.CurrentTopic != conversation.TopicNone {
		topic = string(in.State.CurrentTopic)
	}

	var sb strings.Builder
	sb.WriteString("You are a helpful customer service AI for QuickDeliver, a food delivery app.\n\n")
	sb.WriteString("User Information:\n")
	fmt.Fprintf(&sb, "- Name: %s\n", orNA(in.User.Name))
	fmt.Fprintf(&sb, "- Subscription: %s\n", orNA(in.User.Subscription))
	fmt.Fprintf(&sb, "- Total Orders: %d\n\n", in.User.TotalOrders)
	sb.WriteString("Current Conversation Context:\n")
	fmt.Fprintf(&sb, "- Topic: %s\n", topic)
	fmt.Fprintf(&sb, "- Message Count: %d\n\n", in.State.MessageCount)
	sb.WriteString("Recent Orders (for reference):\n")
	sb.WriteString(FormatRecentOrders(in.RecentOrders))
	sb.WriteString("\n")

	if extra := c.buildEnrichment(in); extra != "" {
		sb.WriteString("\n")
		sb.WriteString(extra)
	}

	sb.WriteString(`
You can help with:
- Order tracking and issues
- Refund processing (ask for order ID, reason, then process)
- Subscription management
- Billing questions
- Restaurant recommendations
- Account settings
- General support

IMPORTANT:
- Maintain conversation context and don't repeat questions already answered
- For refunds: Ask for order ID, then the reason, then process the refund (don't loop back)
- Be conversational and remember what was discussed earlier
- Provide specific, actionable responses based on the conversation flow
`)
	return sb.String()
}

// buildEnrichment renders the profile and recommendation sections within the
// token budget, dropping the lowest-scoring recommendations first.
func (c *Composer) buildEnrichment(in Input) string {
	var sb strings.Builder
	if in.ProfileSummary != "" {
		sb.WriteString("[Customer Profile]\n")
		sb.WriteString(in.ProfileSummary)
		sb.WriteString("\n")
	}

	if in.State.CurrentTopic != conversation.TopicRecommendations || len(in.Recommendations) == 0 {
		return sb.String()
	}

	sorted := make([]recommend.Record, len(in.Recommendations))
	copy(sorted, in.Recommendations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	header := "\n[Suggested Restaurants]\n"
	remaining := c.MaxContextTokens - EstimateTokens(sb.String()) - EstimateTokens(header)

	var entries []string
	for _, r := range sorted {
		entry := formatRecommendation(r)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		entries = append(entries, entry)
		remaining -= tokens
	}
	if len(entries) > 0 {
		sb.WriteString(header)
		for _, e := range entries {
			sb.WriteString(e)
		}
	}
	return sb.String()
}

func formatRecommendation(r recommend.Record) string {
	return fmt.Sprintf("- %s (%s, rated %.1f, %s)\n", r.Name, r.Cuisine, r.Rating, r.DeliveryTime)
}

// FormatRecentOrders lists up to three orders, one per line.
func FormatRecentOrders(recent []orders.Order) string {
	if len(recent) == 0 {
		return "No recent orders"
	}
	if len(recent) > recentOrderCount {
		recent = recent[:recentOrderCount]
	}
	lines := make([]string, len(recent))
	for i, o := range recent {
		lines[i] = fmt.Sprintf("- Order #%s: %s - ₹%s (%s)", orNA(o.Number), orNA(o.Restaurant), formatAmount(o.Total), orNA(string(o.Status)))
	}
	return strings.Join(lines, "\n")
}

// formatAmount drops a zero fraction: 450 -> "450", 320.5 -> "320.50".
func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
