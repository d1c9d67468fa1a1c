package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/gateway"
	"github.com/JakeFAU/websearch/internal/listeners"
)

// GatewayService is what the gateway routes need; gateway.Service satisfies
// it.
type GatewayService interface {
	Search(ctx context.Context, words []string) ([]crawler.SearchResult, error)
	Connections(ctx context.Context, url string) (crawler.Connections, error)
	Statistics() crawler.Statistics
	RefreshStatistics(ctx context.Context) crawler.Statistics
	AddListener(l gateway.Listener) string
	RemoveListener(id string) bool
	Replicas(ctx context.Context) []string
	RegisterReplica(ctx context.Context, address string) error
	UnregisterReplica(ctx context.Context, address string) error
	InsertURL(ctx context.Context, url string, priority bool) error
	Stopwords(ctx context.Context) ([]string, error)
	Paused() bool
	SetPaused(paused bool)
	Ready() bool
}

var _ GatewayService = (*gateway.Service)(nil)

// GatewayOptions extends Options with the webhook listener client.
type GatewayOptions struct {
	Options
	// WebhookClient posts to webhook listeners. Defaults to
	// http.DefaultClient.
	WebhookClient *http.Client
}

type gatewayHandlers struct {
	svc     GatewayService
	webhook *http.Client
	logger  *zap.Logger
}

var errNoReplicas = errors.New("no replica registered")

// NewGatewayServer serves svc.
func NewGatewayServer(svc GatewayService, opts GatewayOptions) *Server {
	h := &gatewayHandlers{svc: svc, webhook: opts.WebhookClient, logger: opts.logger().Named("gateway_api")}
	r := newRouter(opts.Options, func(context.Context) error {
		if !svc.Ready() {
			return errNoReplicas
		}
		return nil
	})
	r.Route("/v1", func(r chi.Router) {
		opts.protect(r)
		// Registration runs the bootstrap sync, which copies a whole store.
		r.Post("/replicas", h.registerReplica)
		r.Get("/statistics/stream", h.statisticsStream)
		r.Group(func(r chi.Router) {
			opts.bounded(r)
			r.Get("/search", h.search)
			r.Get("/connections", h.connections)
			r.Get("/statistics", h.statistics)
			r.Post("/statistics/refresh", h.refreshStatistics)
			r.Post("/statistics/listeners", h.addWebhook)
			r.Delete("/statistics/listeners/{id}", h.removeListener)
			r.Get("/replicas", h.replicas)
			r.Delete("/replicas", h.unregisterReplica)
			r.Get("/pause", h.paused)
			r.Put("/pause", h.setPaused)
			r.Post("/urls", h.insertURL)
			r.Get("/stopwords", h.stopwords)
		})
	})
	return &Server{router: r}
}

// search answers GET /v1/search?q=w1&q=w2. A failed read still carries an
// empty result list next to the error.
func (h *gatewayHandlers) search(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.Search(r.Context(), r.URL.Query()["q"])
	if err != nil {
		if !errors.Is(err, apperr.ErrValidation) {
			h.logger.Warn("search failed", zap.Error(err))
		}
		writeJSON(w, apperr.HTTPStatusCode(err), map[string]any{
			"results": []crawler.SearchResult{},
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]crawler.SearchResult{"results": results})
}

func (h *gatewayHandlers) connections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.svc.Connections(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		writeJSON(w, apperr.HTTPStatusCode(err), map[string]any{
			"url":   conns.URL,
			"links": []string{},
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

func (h *gatewayHandlers) statistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Statistics())
}

func (h *gatewayHandlers) refreshStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.RefreshStatistics(r.Context()))
}

// statisticsStream upgrades to a websocket that receives the current snapshot
// and then every new one until the client disconnects.
func (h *gatewayHandlers) statisticsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := listeners.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	ws := listeners.NewWebSocket(conn, h.logger)
	if err := ws.Deliver(r.Context(), h.svc.Statistics()); err != nil {
		_ = conn.Close()
		return
	}
	id := h.svc.AddListener(ws)
	ws.Serve(r.Context())
	h.svc.RemoveListener(id)
}

type webhookRequest struct {
	CallbackURL string `json:"callback_url"`
}

func (h *gatewayHandlers) addWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	wh, err := listeners.NewWebhook(req.CallbackURL, h.webhook)
	if err != nil {
		writeAppError(w, err)
		return
	}
	id := h.svc.AddListener(wh)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *gatewayHandlers) removeListener(w http.ResponseWriter, r *http.Request) {
	if !h.svc.RemoveListener(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "listener not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *gatewayHandlers) replicas(w http.ResponseWriter, r *http.Request) {
	addrs := h.svc.Replicas(r.Context())
	if addrs == nil {
		addrs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"replicas": addrs})
}

type addressRequest struct {
	Address string `json:"address"`
}

func (h *gatewayHandlers) registerReplica(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.svc.RegisterReplica(r.Context(), req.Address); err != nil {
		h.logger.Warn("replica join failed", zap.String("address", req.Address), zap.Error(err))
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *gatewayHandlers) unregisterReplica(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.UnregisterReplica(r.Context(), r.URL.Query().Get("address")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

func (h *gatewayHandlers) paused(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, pauseRequest{Paused: h.svc.Paused()})
}

func (h *gatewayHandlers) setPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	h.svc.SetPaused(req.Paused)
	writeJSON(w, http.StatusOK, pauseRequest{Paused: h.svc.Paused()})
}

type insertRequest struct {
	URL      string `json:"url"`
	Priority bool   `json:"priority"`
}

func (h *gatewayHandlers) insertURL(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.svc.InsertURL(r.Context(), req.URL, req.Priority); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *gatewayHandlers) stopwords(w http.ResponseWriter, r *http.Request) {
	words, err := h.svc.Stopwords(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if words == nil {
		words = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"stopwords": words})
}
