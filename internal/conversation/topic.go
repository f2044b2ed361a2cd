// Package conversation tracks the state of a support chat session: the
// topic being discussed, the message flow and a short summary.
package conversation

import (
	"encoding/json"
	"strings"
)

// Topic is a support topic detected from user messages. The zero value means
// no topic.
type Topic string

const (
	TopicNone              Topic = ""
	TopicRefundRequest     Topic = "refund_request"
	TopicOrderTracking     Topic = "order_tracking"
	TopicBillingInquiry    Topic = "billing_inquiry"
	TopicRecommendations   Topic = "recommendations"
	TopicAccountManagement Topic = "account_management"
)

// Label returns the topic as a title-cased phrase, e.g. "Refund Request".
func (t Topic) Label() string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// MarshalJSON encodes TopicNone as null.
func (t Topic) MarshalJSON() ([]byte, error) {
	if t == TopicNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

// UnmarshalJSON accepts a string or null.
func (t *Topic) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = TopicNone
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t = Topic(s)
	return nil
}

// Rule maps a message to a topic. Match receives the lowercased message.
type Rule struct {
	Topic Topic
	Match func(lower string) bool
}

// KeywordRule matches when any keyword occurs in the message.
func KeywordRule(topic Topic, keywords ...string) Rule {
	return Rule{
		Topic: topic,
		Match: func(lower string) bool {
			for _, k := range keywords {
				if strings.Contains(lower, k) {
					return true
				}
			}
			return false
		},
	}
}

// DefaultRules returns the support topic rules in priority order. A message
// mentioning both a refund and tracking resolves to refund_request.
func DefaultRules() []Rule {
	return []Rule{
		KeywordRule(TopicRefundRequest, "refund", "return", "money back", "cancel order"),
		KeywordRule(TopicOrderTracking, "track", "order status", "delivery", "where is my order"),
		KeywordRule(TopicBillingInquiry, "bill", "payment", "charge", "subscription"),
		KeywordRule(TopicRecommendations, "recommend", "suggest", "restaurant", "food"),
		KeywordRule(TopicAccountManagement, "account", "profile", "settings", "password"),
	}
}

// Detect returns the topic of the first rule matching message.
func Detect(rules []Rule, message string) (Topic, bool) {
	lower := strings.ToLower(message)
	for _, r := range rules {
		if r.Match(lower) {
			return r.Topic, true
		}
	}
	return TopicNone, false
}
