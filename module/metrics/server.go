package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/membercoin/membernode/module/component"
	"github.com/membercoin/membernode/module/irrecoverable"
)

// Server is the http server that will be serving the /metrics request for prometheus
type Server struct {
	*component.ComponentManager
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates a new server that will start on the specified port,
// and responds to only the `/metrics` endpoint
func NewServer(log zerolog.Logger, port uint, gatherer prometheus.Gatherer) *Server {
	addr := ":" + strconv.Itoa(int(port))

	mux := http.NewServeMux()
	endpoint := "/metrics"
	mux.Handle(endpoint, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	m := &Server{
		server: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		log:    log.With().Str("component", "metrics_server").Str("address", addr).Logger(),
	}

	m.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(m.serve).
		Build()

	return m
}

func (m *Server) serve(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.server.Shutdown(shutdownCtx)
	}()

	m.log.Info().Str("endpoint", "/metrics").Msg("metrics server started")
	ready()

	err := m.server.ListenAndServe()
	// http.ErrServerClosed is returned when Close or Shutdown is called
	if errors.Is(err, http.ErrServerClosed) {
		m.log.Debug().Msg("metrics server shutdown")
		return
	}
	m.log.Err(err).Msg("error running metrics server")
}
