package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/client"
	"github.com/JakeFAU/websearch/internal/crawler"
)

// ReplicaService is what the replica routes need; replica.Node satisfies it.
type ReplicaService interface {
	crawler.Index
	Ping(ctx context.Context) error
	Snapshot(ctx context.Context, w io.Writer) (int64, error)
	Restore(ctx context.Context, r io.Reader) error
	Sync(ctx context.Context, target string) error
	Connect(ctx context.Context) error
	Archive(ctx context.Context) (string, error)
	Ready() bool
}

type replicaHandlers struct {
	svc    ReplicaService
	logger *zap.Logger
}

var errNotConnected = errors.New("replica has not been connected by a gateway")

// NewReplicaServer serves svc.
func NewReplicaServer(svc ReplicaService, opts Options) *Server {
	h := &replicaHandlers{svc: svc, logger: opts.logger().Named("replica_api")}
	r := newRouter(opts, func(ctx context.Context) error {
		if err := svc.Ping(ctx); err != nil {
			return err
		}
		if !svc.Ready() {
			return errNotConnected
		}
		return nil
	})
	r.Route("/v1", func(r chi.Router) {
		opts.protect(r)
		// Snapshot transfers are streamed and may outlast RequestTimeout.
		r.Get("/snapshot", h.snapshot)
		r.Put("/snapshot", h.restore)
		r.Post("/sync", h.sync)
		r.Post("/archive", h.archive)
		r.Group(func(r chi.Router) {
			opts.bounded(r)
			r.Post("/index", h.addToIndex)
			r.Post("/search", h.search)
			r.Get("/connections", h.connections)
			r.Get("/contains", h.contains)
			r.Post("/top-words", h.updateTopWords)
			r.Get("/top-searches", h.topSearches)
			r.Get("/frequent-words", h.frequentWords)
			r.Get("/size", h.size)
			r.Post("/connect", h.connect)
		})
	})
	return &Server{router: r}
}

func (h *replicaHandlers) addToIndex(w http.ResponseWriter, r *http.Request) {
	var req crawler.IndexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.svc.AddToIndex(r.Context(), req); err != nil {
		h.logFailure("add to index", err, zap.String("url", req.URL))
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *replicaHandlers) search(w http.ResponseWriter, r *http.Request) {
	var req wordsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	results, err := h.svc.Search(r.Context(), req.Words)
	if err != nil {
		h.logFailure("search", err)
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]crawler.SearchResult{"results": results})
}

func (h *replicaHandlers) connections(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	conns, err := h.svc.Connections(r.Context(), u)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

func (h *replicaHandlers) contains(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	ok, err := h.svc.ContainsURL(r.Context(), u)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"contains": ok})
}

func (h *replicaHandlers) updateTopWords(w http.ResponseWriter, r *http.Request) {
	var req wordsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.svc.UpdateTopWords(r.Context(), req.Words); err != nil {
		h.logFailure("update top words", err)
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *replicaHandlers) topSearches(w http.ResponseWriter, r *http.Request) {
	top, err := h.svc.TopSearches(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]crawler.WordCount{"top_searches": top})
}

func (h *replicaHandlers) frequentWords(w http.ResponseWriter, r *http.Request) {
	words, err := h.svc.FrequentWords(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"words": words})
}

func (h *replicaHandlers) size(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Size(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"size": n})
}

// snapshot streams the store. Once bytes are on the wire a failure can only
// be signalled by cutting the response short.
func (h *replicaHandlers) snapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", client.SnapshotContentType)
	n, err := h.svc.Snapshot(r.Context(), w)
	if err != nil {
		h.logFailure("snapshot", err, zap.Int64("bytes_written", n))
		if n == 0 {
			w.Header().Del("Content-Type")
			writeAppError(w, err)
			return
		}
		panic(http.ErrAbortHandler)
	}
}

func (h *replicaHandlers) restore(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Restore(r.Context(), r.Body); err != nil {
		h.logFailure("restore", err)
		writeAppError(w, err)
		return
	}
	h.logger.Info("store restored from peer", zap.String("request_id", RequestID(r.Context())))
	w.WriteHeader(http.StatusNoContent)
}

func (h *replicaHandlers) sync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.svc.Sync(r.Context(), req.Target); err != nil {
		h.logFailure("sync", err, zap.String("target", req.Target))
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *replicaHandlers) connect(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Connect(r.Context()); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *replicaHandlers) archive(w http.ResponseWriter, r *http.Request) {
	uri, err := h.svc.Archive(r.Context())
	if err != nil {
		h.logFailure("archive", err)
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uri": uri})
}

func (h *replicaHandlers) logFailure(op string, err error, fields ...zap.Field) {
	if errors.Is(err, apperr.ErrValidation) {
		return
	}
	fields = append(fields, zap.String("op", op), zap.Error(err))
	if apperr.IsLocked(err) {
		h.logger.Warn("replica busy", fields...)
		return
	}
	h.logger.Error("replica operation failed", fields...)
}
