package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"

	"github.com/transparencytube/blobindex"
)

// server answers queries over HTTP, opening each dataset on first use.
type server struct {
	logger *slog.Logger
	reg    *prometheus.Registry
	opts   []blobindex.Option

	mu      sync.Mutex
	stores  map[string]*blobindex.Store[blobindex.Record]
	opening singleflight.Group
}

func newServer(logger *slog.Logger, reg *prometheus.Registry, opts ...blobindex.Option) *server {
	return &server{
		logger: logger,
		reg:    reg,
		opts:   opts,
		stores: make(map[string]*blobindex.Store[blobindex.Record]),
	}
}

func (s *server) router() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/datasets/{dataset}/index", s.handleGetIndex).Methods("GET").Name("GetIndex")
	router.HandleFunc("/datasets/{dataset}/rows", s.handleGetRows).Methods("GET").Name("GetRows")
	return router
}

func (s *server) listen(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// store returns the open store for dataset, opening it if needed. A failed
// open is not remembered, so a later request retries it. Concurrent opens of
// one dataset share a fetch that outlives a disconnecting caller.
func (s *server) store(ctx context.Context, dataset string) (*blobindex.Store[blobindex.Record], error) {
	if st, ok := s.lookup(dataset); ok {
		return st, nil
	}

	openCtx := context.WithoutCancel(ctx)
	ch := s.opening.DoChan(dataset, func() (any, error) {
		if st, ok := s.lookup(dataset); ok {
			return st, nil
		}
		st, err := blobindex.OpenRecords(openCtx, dataset, s.opts...)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.stores[dataset] = st
		s.mu.Unlock()
		return st, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		st, _ := res.Val.(*blobindex.Store[blobindex.Record])
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *server) lookup(dataset string) (*blobindex.Store[blobindex.Record], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[dataset]
	return st, ok
}

type indexResponse struct {
	Dataset   string              `json:"dataset"`
	Version   string              `json:"version"`
	BaseURL   string              `json:"baseUrl"`
	KeyFields []string            `json:"keyFields"`
	KeyFiles  []blobindex.KeyFile `json:"keyFiles"`
	Cols      []blobindex.Column  `json:"cols"`
}

func (s *server) handleGetIndex(w http.ResponseWriter, r *http.Request) {
	st, err := s.store(r.Context(), mux.Vars(r)["dataset"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := indexResponse{
		Dataset:   st.Dataset(),
		Version:   st.Version(),
		BaseURL:   st.BaseURL(),
		KeyFields: st.KeyFields(),
		KeyFiles:  st.KeyFiles(),
	}
	for _, kf := range resp.KeyFields {
		if col, ok := st.Column(kf); ok {
			resp.Cols = append(resp.Cols, col)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("write index response failed", "error", err)
	}
}

func (s *server) handleGetRows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec := filterSpec{
		eq:    q["eq"],
		where: q["where"],
		from:  q.Get("from"),
		to:    q.Get("to"),
		or:    q.Get("or") == "true",
		desc:  q.Get("desc") == "true",
	}
	filters, err := spec.filters()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		http.Error(w, "limit: "+err.Error(), http.StatusBadRequest)
		return
	}
	parallelism, err := intParam(q.Get("parallelism"))
	if err != nil {
		http.Error(w, "parallelism: "+err.Error(), http.StatusBadRequest)
		return
	}

	st, err := s.store(r.Context(), mux.Vars(r)["dataset"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := st.Query(r.Context(), filters, spec.options(parallelism, limit))
	if err != nil {
		// The client went away.
		return
	}

	rows := res.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Candidate-Shards", strconv.Itoa(res.Candidates))
	w.Header().Set("X-Failed-Shards", strconv.Itoa(len(res.Failed)))
	enc := json.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			s.logger.Warn("write rows response failed", "error", err)
			return
		}
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, blobindex.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, blobindex.ErrInvalidOption):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("open dataset failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}
