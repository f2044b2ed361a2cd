package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quickdeliver/qdsupport/internal/config"
)

// --- recommend ---

var recommendKinds = []string{"hybrid", "collaborative", "content_based"}

var recommendCmd = &cobra.Command{
	Use:   "recommend <username>",
	Short: "Show restaurant recommendations for a user",
	Long: `Show restaurant recommendations for a user.

Examples:
  qdsupport recommend alice
  qdsupport recommend alice --kind collaborative --limit 3
  qdsupport recommend alice --all`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")
		all, _ := cmd.Flags().GetBool("all")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if all {
			return showPersonalized(cmd.Context(), client, os.Stdout, args[0])
		}

		path, err := recommendationsPath(args[0], kind, limit)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var result struct {
			Recommendations []recommendation `json:"recommendations"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		writeRecommendations(os.Stdout, result.Recommendations)
		return nil
	},
}

func init() {
	recommendCmd.Flags().String("kind", "hybrid", "list kind: "+strings.Join(recommendKinds, ", "))
	recommendCmd.Flags().Int("limit", 0, "maximum number of restaurants (0 = server default)")
	recommendCmd.Flags().Bool("all", false, "show the full personalized bundle")
}

// recommendationsPath builds the API path for one recommendation list.
func recommendationsPath(username, kind string, limit int) (string, error) {
	valid := false
	for _, k := range recommendKinds {
		if k == kind {
			valid = true
			break
		}
	}
	if !valid {
		return "", fmt.Errorf("unknown kind %q (want one of %s)", kind, strings.Join(recommendKinds, ", "))
	}
	path := "/users/" + url.PathEscape(username) + "/recommendations/" + kind
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return path, nil
}

type personalized struct {
	Hybrid        []recommendation `json:"hybrid"`
	Collaborative []recommendation `json:"collaborative"`
	ContentBased  []recommendation `json:"content_based"`
	Trending      []recommendation `json:"trending"`
	Generation    uint64           `json:"generation"`
	Fallback      bool             `json:"fallback"`
}

func showPersonalized(ctx context.Context, client *apiClient, w io.Writer, username string) error {
	resp, err := client.get(ctx, "/users/"+url.PathEscape(username)+"/recommendations")
	if err != nil {
		return err
	}
	var p personalized
	if err := decodeJSON(resp, &p); err != nil {
		return err
	}
	if p.Fallback {
		printWarning("model unavailable, showing top-rated restaurants")
	}
	sections := []struct {
		title string
		recs  []recommendation
	}{
		{"Recommended for you", p.Hybrid},
		{"Customers like you ordered", p.Collaborative},
		{"Matches your taste", p.ContentBased},
		{"Trending", p.Trending},
	}
	for _, s := range sections {
		fmt.Fprintln(w, colorize(colorBold, s.title))
		writeRecommendations(w, s.recs)
		fmt.Fprintln(w)
	}
	return nil
}

// --- trending ---

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Show restaurants trending over the last week",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/recommendations/trending"
		if limit > 0 {
			path += "?limit=" + strconv.Itoa(limit)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var result struct {
			Recommendations []recommendation `json:"recommendations"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		writeRecommendations(os.Stdout, result.Recommendations)
		return nil
	},
}

func init() {
	trendingCmd.Flags().Int("limit", 0, "maximum number of restaurants (0 = server default)")
}

// --- orders ---

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List or add orders",
}

type orderView struct {
	Number     string  `json:"order_number"`
	Restaurant string  `json:"restaurant"`
	Total      float64 `json:"total"`
	Status     string  `json:"status"`
	Date       string  `json:"date"`
}

var ordersListCmd = &cobra.Command{
	Use:   "list <username>",
	Short: "List a user's orders, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/users/"+url.PathEscape(args[0])+"/orders")
		if err != nil {
			return err
		}
		var result struct {
			Orders []orderView `json:"orders"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if len(result.Orders) == 0 {
			fmt.Println("No orders found.")
			return nil
		}
		for _, o := range result.Orders {
			fmt.Printf("%s  %s  %-20s ₹%-8.2f %s\n",
				colorize(colorCyan, o.Number),
				o.Date,
				o.Restaurant,
				o.Total,
				o.Status,
			)
		}
		return nil
	},
}

type orderItemRequest struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type orderRequest struct {
	Restaurant string             `json:"restaurant"`
	Items      []orderItemRequest `json:"items,omitempty"`
	Total      float64            `json:"total"`
	Status     string             `json:"status,omitempty"`
	Date       string             `json:"date,omitempty"`
}

// parseItem parses "name:quantity:price". Quantity and price are optional
// and default to 1 and 0.
func parseItem(s string) (orderItemRequest, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 || strings.TrimSpace(parts[0]) == "" {
		return orderItemRequest{}, fmt.Errorf("invalid item %q (want name:quantity:price)", s)
	}
	item := orderItemRequest{Name: strings.TrimSpace(parts[0]), Quantity: 1}
	if len(parts) > 1 {
		q, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || q < 1 {
			return orderItemRequest{}, fmt.Errorf("invalid quantity in item %q", s)
		}
		item.Quantity = q
	}
	if len(parts) > 2 {
		p, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil || p < 0 {
			return orderItemRequest{}, fmt.Errorf("invalid price in item %q", s)
		}
		item.Price = p
	}
	return item, nil
}

// buildOrderRequest assembles an order. A zero total is derived from items.
func buildOrderRequest(restaurant string, items []string, total float64, status, date string) (orderRequest, error) {
	if strings.TrimSpace(restaurant) == "" {
		return orderRequest{}, fmt.Errorf("--restaurant is required")
	}
	req := orderRequest{Restaurant: restaurant, Total: total, Status: status, Date: date}
	for _, raw := range items {
		item, err := parseItem(raw)
		if err != nil {
			return orderRequest{}, err
		}
		req.Items = append(req.Items, item)
	}
	if req.Total == 0 {
		for _, it := range req.Items {
			req.Total += float64(it.Quantity) * it.Price
		}
	}
	return req, nil
}

var ordersAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Record an order for a user",
	Long: `Record an order for a user and queue a model rebuild.

Examples:
  qdsupport orders add alice --restaurant "Pizza Hut" --item "Margherita:2:225"
  qdsupport orders add bob --restaurant Subway --total 250 --status Preparing`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		restaurant, _ := cmd.Flags().GetString("restaurant")
		items, _ := cmd.Flags().GetStringArray("item")
		total, _ := cmd.Flags().GetFloat64("total")
		status, _ := cmd.Flags().GetString("status")
		date, _ := cmd.Flags().GetString("date")

		req, err := buildOrderRequest(restaurant, items, total, status, date)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/users/"+url.PathEscape(args[0])+"/orders", req)
		if err != nil {
			return err
		}
		var result struct {
			Order         orderView `json:"order"`
			RebuildQueued bool      `json:"rebuild_queued"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Recorded order %s at %s", result.Order.Number, result.Order.Restaurant)
		if result.RebuildQueued {
			printStatus("Model", "rebuild queued")
		}
		return nil
	},
}

func init() {
	ordersAddCmd.Flags().String("restaurant", "", "restaurant name")
	ordersAddCmd.Flags().StringArray("item", nil, "item as name:quantity:price (repeatable)")
	ordersAddCmd.Flags().Float64("total", 0, "order total (default: sum of items)")
	ordersAddCmd.Flags().String("status", "", "order status (default Delivered)")
	ordersAddCmd.Flags().String("date", "", "order date YYYY-MM-DD (default today)")
	ordersCmd.AddCommand(ordersListCmd)
	ordersCmd.AddCommand(ordersAddCmd)
}

// --- bills ---

var billsCmd = &cobra.Command{
	Use:   "bills <username>",
	Short: "List a user's monthly bills",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/users/"+url.PathEscape(args[0])+"/bills")
		if err != nil {
			return err
		}
		var result struct {
			Bills []struct {
				Month   string  `json:"month"`
				Amount  float64 `json:"amount"`
				Status  string  `json:"status"`
				DueDate string  `json:"due_date"`
			} `json:"bills"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if len(result.Bills) == 0 {
			fmt.Println("No bills found.")
			return nil
		}
		for _, b := range result.Bills {
			fmt.Printf("%s  ₹%-8.2f %-8s due %s\n", colorize(colorBold, b.Month), b.Amount, b.Status, b.DueDate)
		}
		return nil
	},
}

// --- chat ---

type chatReply struct {
	SessionID         string  `json:"session_id"`
	Message           string  `json:"message"`
	Topic             *string `json:"topic"`
	TopicMessageCount int     `json:"topic_message_count"`
	Summary           string  `json:"summary"`
	Degraded          bool    `json:"degraded"`
}

func (r chatReply) topicLabel() string {
	if r.Topic == nil || *r.Topic == "" {
		return "general"
	}
	return *r.Topic
}

var chatCmd = &cobra.Command{
	Use:   "chat <username>",
	Short: "Chat with the support assistant",
	Long: `Start a support conversation as the given user. Reads one message per
line from stdin until EOF or "/quit". Use --message for a single turn.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		sessionID, err := createChatSession(ctx, client, args[0])
		if err != nil {
			return err
		}
		if message != "" {
			return chatTurn(ctx, client, os.Stdout, sessionID, message)
		}

		printStatus("Session", "%s", sessionID)
		return chatLoop(ctx, client, os.Stdin, os.Stdout, sessionID)
	},
}

func init() {
	chatCmd.Flags().String("message", "", "send a single message and exit")
}

func createChatSession(ctx context.Context, client *apiClient, username string) (string, error) {
	resp, err := client.post(ctx, "/chat/sessions", map[string]string{"username": username})
	if err != nil {
		return "", err
	}
	var sess struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(resp, &sess); err != nil {
		return "", err
	}
	return sess.SessionID, nil
}

func chatTurn(ctx context.Context, client *apiClient, w io.Writer, sessionID, text string) error {
	resp, err := client.post(ctx, "/chat/sessions/"+url.PathEscape(sessionID)+"/messages", map[string]string{"message": text})
	if err != nil {
		return err
	}
	var reply chatReply
	if err := decodeJSON(resp, &reply); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s\n", colorize(colorCyan, "["+reply.topicLabel()+"]"), reply.Message)
	if reply.Degraded {
		printWarning("assistant unavailable, reply is a fallback")
	}
	return nil
}

func chatLoop(ctx context.Context, client *apiClient, in io.Reader, w io.Writer, sessionID string) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, colorize(colorBold, "you> "))
		if !sc.Scan() {
			fmt.Fprintln(w)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			resp, err := client.post(ctx, "/chat/sessions/"+url.PathEscape(sessionID)+"/reset", nil)
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, nil); err != nil {
				return err
			}
			printSuccess("Conversation reset")
			continue
		}
		if err := chatTurn(ctx, client, w, sessionID, line); err != nil {
			printError("%v", err)
		}
	}
}

var historyCmd = &cobra.Command{
	Use:   "history <username>",
	Short: "Show or clear a user's saved chat sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purge, _ := cmd.Flags().GetBool("clear")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/users/" + url.PathEscape(args[0]) + "/chat-history"
		if purge {
			resp, err := client.delete(cmd.Context(), path)
			if err != nil {
				return err
			}
			var result struct {
				Deleted int `json:"deleted"`
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Deleted %d chat sessions", result.Deleted)
			return nil
		}

		resp, err := client.get(cmd.Context(), path+"?limit="+strconv.Itoa(limit))
		if err != nil {
			return err
		}
		var result struct {
			Sessions []struct {
				SessionID    string    `json:"session_id"`
				MessageCount int       `json:"message_count"`
				Summary      string    `json:"summary"`
				UpdatedAt    time.Time `json:"updated_at"`
			} `json:"sessions"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if len(result.Sessions) == 0 {
			fmt.Println("No chat history.")
			return nil
		}
		for _, s := range result.Sessions {
			fmt.Printf("%s  %s  %3d msgs  %s\n",
				colorize(colorCyan, truncate(s.SessionID, 8)),
				s.UpdatedAt.Local().Format(time.DateTime),
				s.MessageCount,
				truncate(s.Summary, 80),
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of sessions to list")
	historyCmd.Flags().Bool("clear", false, "delete the saved sessions")
}

// --- model ---

type modelStatus struct {
	Ready       bool      `json:"ready"`
	Generation  uint64    `json:"generation"`
	BuiltAt     time.Time `json:"built_at"`
	Users       int       `json:"users"`
	Restaurants int       `json:"restaurants"`
}

func printModelStatus(ms modelStatus) {
	if !ms.Ready {
		printStatus("Model", "not built (serving fallback catalog)")
		return
	}
	printStatus("Model", "generation %d, built %s", ms.Generation, ms.BuiltAt.Local().Format(time.DateTime))
	printStatus("Users", "%d", ms.Users)
	printStatus("Restaurants", "%d", ms.Restaurants)
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect or rebuild the recommendation model",
}

var modelStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the model currently served",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/model")
		if err != nil {
			return err
		}
		var ms modelStatus
		if err := decodeJSON(resp, &ms); err != nil {
			return err
		}
		printModelStatus(ms)
		return nil
	},
}

var modelRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the model from current order history",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/model/rebuild", nil)
		if err != nil {
			return err
		}
		var ms modelStatus
		if err := decodeJSON(resp, &ms); err != nil {
			return err
		}
		printSuccess("Model rebuilt (generation %d)", ms.Generation)
		printModelStatus(ms)
		return nil
	},
}

func init() {
	modelCmd.AddCommand(modelStatusCmd)
	modelCmd.AddCommand(modelRebuildCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		enc, _ := cmd.Flags().GetBool("json")
		keys := config.ShowAll(cfg)
		if enc {
			out := make(map[string]string, len(keys))
			for _, k := range keys {
				out[k.Key] = k.Value
			}
			e := json.NewEncoder(os.Stdout)
			e.SetIndent("", "  ")
			return e.Encode(out)
		}
		for _, k := range keys {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configShowCmd.Flags().Bool("json", false, "print as JSON")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
