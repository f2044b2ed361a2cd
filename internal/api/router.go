// Package api exposes the support service over HTTP and MCP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quickdeliver/qdsupport/internal/conversation"
	"github.com/quickdeliver/qdsupport/internal/pipeline"
	"github.com/quickdeliver/qdsupport/internal/profile"
	"github.com/quickdeliver/qdsupport/internal/proxy"
	"github.com/quickdeliver/qdsupport/internal/recommend"
	"github.com/quickdeliver/qdsupport/internal/storage"
)

const defaultChatRateLimit = 30 // messages per minute per client IP

// ChatHandler runs one chat turn.
type ChatHandler interface {
	Handle(ctx context.Context, sess *conversation.Session, text string) (pipeline.Reply, error)
}

// ModelLister lists the models of the upstream LLM provider.
type ModelLister interface {
	ListModels(ctx context.Context) ([]proxy.Model, error)
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Store     *storage.Store
	Engine    *recommend.Engine
	Profiles  *profile.Manager
	Sessions  *conversation.Sessions
	Assistant ChatHandler
	Models    ModelLister // optional
	Token     string

	// OrdersReadOnly rejects order creation. It is set when the model reads
	// order history from an external database that this service cannot
	// write to, so a local order would never reach the recommender.
	OrdersReadOnly bool

	// ChatRateLimit is the number of chat messages accepted per minute per
	// client IP. Zero means the default.
	ChatRateLimit int
}

// NewHandler builds the HTTP router.
func NewHandler(deps Deps) http.Handler {
	if deps.ChatRateLimit <= 0 {
		deps.ChatRateLimit = defaultChatRateLimit
	}
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/v1/models", h.listModels)
		r.Get("/catalog", h.catalog)
		r.Get("/recommendations/trending", h.trending)

		r.Route("/users/{username}", func(r chi.Router) {
			r.Get("/recommendations", h.personalized)
			r.Get("/recommendations/{kind}", h.recommendations)
			r.Get("/orders", h.listOrders)
			r.Post("/orders", h.createOrder)
			r.Get("/orders/{number}", h.getOrder)
			r.Get("/bills", h.listBills)
			r.Get("/profile", h.profile)
			r.Get("/chat-history", h.chatHistory)
			r.Delete("/chat-history", h.deleteChatHistory)
		})

		r.Get("/model", h.modelStatus)
		r.Post("/model/rebuild", h.rebuildModel)

		r.Route("/chat/sessions", func(r chi.Router) {
			r.Post("/", h.createSession)
			r.Get("/{id}", h.getSession)
			r.Post("/{id}/reset", h.resetSession)
			r.With(httprate.LimitByIP(deps.ChatRateLimit, time.Minute)).Post("/{id}/messages", h.sendMessage)
		})
	})

	return r
}

type handlers struct {
	deps Deps
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "generation": uint64(0)}
	if s := h.deps.Engine.Snapshot(); s != nil {
		resp["generation"] = s.Generation
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	if h.deps.Models == nil {
		writeJSON(w, http.StatusOK, proxy.ModelList{Object: "list", Data: []proxy.Model{}})
		return
	}
	models, err := h.deps.Models.ListModels(r.Context())
	if err != nil {
		httpError(w, http.StatusBadGateway, "upstream_error", "listing models: %v", err)
		return
	}
	if models == nil {
		models = []proxy.Model{}
	}
	writeJSON(w, http.StatusOK, proxy.ModelList{Object: "list", Data: models})
}
