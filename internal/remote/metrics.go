package remote

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/utafrali/foodcart/pkg/errors"
)

// Outcome labels for remote call metrics.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var remoteRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "storefront_remote_request_duration_seconds",
		Help:    "Duration of food API calls in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"endpoint", "outcome"},
)

// Outcome classifies a call result for metrics and notifications.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, apperrors.ErrRejected):
		return OutcomeRejected
	case apperrors.HTTPStatus(err) < 500:
		// 4xx answers are the API refusing the call, not failing to answer.
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

func observeRequest(endpoint string, err error, d time.Duration) {
	remoteRequestDuration.WithLabelValues(endpoint, Outcome(err)).Observe(d.Seconds())
}
