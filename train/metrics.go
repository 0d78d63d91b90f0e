package train

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	trainLoss = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fairgp_train_loss",
		Help: "Most recent training loss by model and component",
	}, []string{"model", "part"})

	trainSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fairgp_train_steps_total",
		Help: "Optimizer steps taken by model",
	}, []string{"model"})

	epochDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fairgp_epoch_duration_seconds",
		Help:    "Duration of one training epoch",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"model"})

	evalMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fairgp_eval_metric",
		Help: "Evaluation metrics on the test split",
	}, []string{"model", "metric"})
)

// ServeMetrics exposes the default Prometheus registry on addr until ctx is
// done.
func ServeMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("serving metrics", "addr", addr)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}
