package httpsrv

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tarcisiozf/dslot/engine"
	"github.com/tarcisiozf/dslot/httpsrv/internal/router"
	"go.uber.org/zap"
)

type HttpServer struct {
	db     *engine.Engine
	port   string
	logger *zap.Logger
	server *http.Server
}

func NewHttpServer(db *engine.Engine, port string, logger *zap.Logger) *HttpServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HttpServer{
		db:     db,
		port:   port,
		logger: logger,
	}
}

func (s *HttpServer) Start() {
	s.server = &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("http server listening", zap.String("port", s.port))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HttpServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.addRoutes(mux)
	return mux
}

func (s *HttpServer) addRoutes(mux *http.ServeMux) {
	r := router.NewRouter(s.db, s.logger)
	mux.HandleFunc("GET /info", r.HandleInfo)
	mux.HandleFunc("GET /bands", r.HandleBands)
	mux.HandleFunc("PUT /bands", r.HandlePublishBands)
	mux.HandleFunc("GET /slots/{algorithm}/{id}", r.HandleSlot)
	mux.HandleFunc("DELETE /slots/{algorithm}/{id}", r.HandleForget)
	mux.HandleFunc("GET /ranges/{algorithm}", r.HandleRange)
	mux.HandleFunc("GET /shards/{slot}", r.HandleShard)
	mux.HandleFunc("POST /batch", r.HandleBatch)
	mux.Handle("GET /metrics", promhttp.Handler())
}
