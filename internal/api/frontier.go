package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/crawler"
)

// MaxLongPoll caps the wait a /v1/next caller may ask for.
const MaxLongPoll = 30 * time.Second

// FrontierService is what the frontier routes need.
type FrontierService interface {
	crawler.Frontier
	Len(ctx context.Context) (int, error)
}

type frontierHandlers struct {
	svc    FrontierService
	logger *zap.Logger
}

// NewFrontierServer serves svc.
func NewFrontierServer(svc FrontierService, opts Options) *Server {
	h := &frontierHandlers{svc: svc, logger: opts.logger().Named("frontier_api")}
	r := newRouter(opts, func(ctx context.Context) error {
		_, err := svc.Len(ctx)
		return err
	})
	r.Route("/v1", func(r chi.Router) {
		opts.protect(r)
		r.Get("/next", h.next)
		r.Group(func(r chi.Router) {
			opts.bounded(r)
			r.Post("/urls", h.add)
			r.Post("/urls/first", h.addFirst)
			r.Get("/stopwords", h.stopwords)
			r.Post("/stopwords", h.addStopwords)
			r.Get("/size", h.size)
		})
	})
	return &Server{router: r}
}

type urlRequest struct {
	URL string `json:"url"`
}

type wordsRequest struct {
	Words []string `json:"words"`
}

// next leases the head URL, waiting up to ?wait= (capped at MaxLongPoll).
// An empty queue at the end of the wait is answered with 204.
func (h *frontierHandlers) next(w http.ResponseWriter, r *http.Request) {
	wait := MaxLongPoll
	if raw := r.URL.Query().Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "wait must be a non-negative duration")
			return
		}
		wait = min(d, MaxLongPoll)
	}
	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	u, err := h.svc.Next(ctx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"url": u})
	case r.Context().Err() != nil:
		// Client went away; nothing to answer.
	case errors.Is(err, context.DeadlineExceeded):
		w.WriteHeader(http.StatusNoContent)
	default:
		h.logger.Error("lease url failed", zap.Error(err))
		writeAppError(w, err)
	}
}

func (h *frontierHandlers) add(w http.ResponseWriter, r *http.Request) {
	h.insert(w, r, h.svc.Add)
}

func (h *frontierHandlers) addFirst(w http.ResponseWriter, r *http.Request) {
	h.insert(w, r, h.svc.AddFirst)
}

func (h *frontierHandlers) insert(w http.ResponseWriter, r *http.Request, add func(context.Context, string) error) {
	var req urlRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := add(r.Context(), req.URL); err != nil {
		if !errors.Is(err, apperr.ErrValidation) {
			h.logger.Error("enqueue url failed", zap.String("url", req.URL), zap.Error(err))
		}
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *frontierHandlers) stopwords(w http.ResponseWriter, r *http.Request) {
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

func (h *frontierHandlers) addStopwords(w http.ResponseWriter, r *http.Request) {
	var req wordsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.svc.AddStopWords(r.Context(), req.Words); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *frontierHandlers) size(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Len(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"size": n})
}
