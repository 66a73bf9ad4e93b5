package ai

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-evaluator-api/internal/errdefs"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evaluator",
		Subsystem: "ai",
		Name:      "evaluation_duration_seconds",
		Help:      "Duration of AI evaluation requests",
	}, []string{"provider", "model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evaluator",
		Subsystem: "ai",
		Name:      "evaluation_failures_total",
		Help:      "Number of AI evaluation failures by kind",
	}, []string{"provider", "model", "kind"})
)

func observeDuration(provider, model string, start time.Time) {
	aiDuration.WithLabelValues(provider, model).Observe(time.Since(start).Seconds())
}

func recordFailure(span trace.Span, provider, model string, err error) {
	kind := "service"
	if errors.Is(err, errdefs.ErrAIProtocol) {
		kind = "protocol"
	}
	aiFailures.WithLabelValues(provider, model, kind).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
