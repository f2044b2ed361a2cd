package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/quickdeliver/qdsupport/internal/conversation"
	"github.com/quickdeliver/qdsupport/internal/orders"
	"github.com/quickdeliver/qdsupport/internal/recommend"
	"github.com/quickdeliver/qdsupport/internal/storage"
)

const (
	defaultMCPLimit = 5
	maxMCPLimit     = 50
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Engine *recommend.Engine
	Rules  []conversation.Rule // topic rules; nil means conversation.DefaultRules
}

// NewMCPServer creates an MCP server with the support tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"qdsupport",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("QuickDeliver support: restaurant recommendations, order and bill lookup, conversation topic detection."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("recommend_restaurants",
			mcp.WithDescription("Recommend restaurants for a customer from their order history and preferences."),
			mcp.WithString("username", mcp.Description("Customer username"), mcp.Required()),
			mcp.WithString("kind", mcp.Description("hybrid (default), collaborative or content_based")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of restaurants (default 5)")),
		),
		mcpRecommend(deps),
	)

	s.AddTool(
		mcp.NewTool("trending_restaurants",
			mcp.WithDescription("List restaurants ordered by recent popularity across all customers."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of restaurants (default 5)")),
		),
		mcpTrending(deps),
	)

	s.AddTool(
		mcp.NewTool("lookup_orders",
			mcp.WithDescription("Look up a customer's orders, newest first."),
			mcp.WithString("username", mcp.Description("Customer username"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of orders (default 5)")),
		),
		mcpLookupOrders(deps),
	)

	s.AddTool(
		mcp.NewTool("lookup_bills",
			mcp.WithDescription("Look up a customer's bills, latest due date first."),
			mcp.WithString("username", mcp.Description("Customer username"), mcp.Required()),
		),
		mcpLookupBills(deps),
	)

	s.AddTool(
		mcp.NewTool("conversation_topic",
			mcp.WithDescription("Detect the support topic of a customer message."),
			mcp.WithString("message", mcp.Description("Customer message"), mcp.Required()),
		),
		mcpConversationTopic(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"catalog://restaurants",
			"Restaurant Catalog",
			mcp.WithResourceDescription("Every restaurant with cuisine, rating and delivery time"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCatalog(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"model://status",
			"Recommendation Model Status",
			mcp.WithResourceDescription("Generation and size of the recommendation model currently served"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceModel(deps),
	)

	return s
}

func mcpLimit(req mcp.CallToolRequest) int {
	limit := req.GetInt("limit", defaultMCPLimit)
	if limit <= 0 {
		limit = defaultMCPLimit
	}
	if limit > maxMCPLimit {
		limit = maxMCPLimit
	}
	return limit
}

func mcpRecommend(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}
		limit := mcpLimit(req)

		var records []recommend.Record
		switch kind := recommend.Source(req.GetString("kind", string(recommend.SourceHybrid))); kind {
		case recommend.SourceHybrid:
			records = deps.Engine.Hybrid(user, limit)
		case recommend.SourceCollaborative:
			records = deps.Engine.Collaborative(user, limit)
		case recommend.SourceContentBased:
			records = deps.Engine.ContentBased(user, limit)
		default:
			return mcpError(fmt.Sprintf("unknown kind %q", kind)), nil
		}
		return mcpJSON(records)
	}
}

func mcpTrending(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(deps.Engine.Trending(mcpLimit(req)))
	}
}

func mcpLookupOrders(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}
		list, err := deps.Store.RecentOrders(user, mcpLimit(req))
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}
		if list == nil {
			list = []orders.Order{}
		}
		return mcpJSON(list)
	}
}

func mcpLookupBills(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}
		bills, err := deps.Store.ListBills(user)
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}
		if bills == nil {
			bills = []storage.Bill{}
		}
		return mcpJSON(bills)
	}
}

func mcpConversationTopic(deps MCPDeps) server.ToolHandlerFunc {
	rules := deps.Rules
	if rules == nil {
		rules = conversation.DefaultRules()
	}
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msg, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		topic, ok := conversation.Detect(rules, msg)
		return mcpJSON(map[string]any{
			"topic":    topic,
			"detected": ok,
			"label":    topic.Label(),
		})
	}
}

func mcpResourceCatalog(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		restaurants, err := deps.Store.ListRestaurants()
		if err != nil {
			return nil, fmt.Errorf("failed to list restaurants: %w", err)
		}
		return mcpResourceJSON(req.Params.URI, restaurants)
	}
}

func mcpResourceModel(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return mcpResourceJSON(req.Params.URI, snapshotStatus(deps.Engine.Snapshot()))
	}
}

func mcpResourceJSON(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
