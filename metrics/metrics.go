// Package metrics exposes the client's prometheus counters.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectsTotal      = promauto.NewCounterVec(prometheus.CounterOpts{Name: "shiftterm_connects_total", Help: "Connection attempts by transport and result"}, []string{"transport", "result"})
	ActiveConnections  = promauto.NewGauge(prometheus.GaugeOpts{Name: "shiftterm_active_connections", Help: "Open connections"})
	BytesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "shiftterm_bytes_received_total", Help: "Raw bytes read from the remote"})
	BytesSentTotal     = promauto.NewCounter(prometheus.CounterOpts{Name: "shiftterm_bytes_sent_total", Help: "Raw bytes written to the remote"})
	NegotiationsTotal  = promauto.NewCounterVec(prometheus.CounterOpts{Name: "shiftterm_telnet_negotiations_total", Help: "Telnet option commands received"}, []string{"command", "option"})
	DetectionsTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Name: "shiftterm_detections_total", Help: "Protocol detection outcomes"}, []string{"result"})
	TransfersTotal     = promauto.NewCounterVec(prometheus.CounterOpts{Name: "shiftterm_transfers_total", Help: "ZMODEM sessions by role and outcome"}, []string{"role", "result"})
	TransferBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "shiftterm_transfer_bytes_total", Help: "File bytes moved by ZMODEM"}, []string{"role"})
	TransferDuration   = promauto.NewHistogram(prometheus.HistogramOpts{Name: "shiftterm_transfer_duration_seconds", Help: "ZMODEM session lifetime", Buckets: prometheus.ExponentialBuckets(0.05, 2, 14)})
	StatusEventsTotal  = promauto.NewCounterVec(prometheus.CounterOpts{Name: "shiftterm_status_events_total", Help: "Status events emitted by kind"}, []string{"kind"})
)

// Handler serves /metrics and /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve runs the metrics endpoint on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "metrics listener on %s", addr)
	}
	return nil
}
