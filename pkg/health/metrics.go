package health

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/laconorg/deployer/pkg/metrics"
)

var (
	probeAttempts = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Name:      "health_attempts",
		Help:      "Number of requests made before a health probe gave a verdict.",
		Buckets:   stdprometheus.LinearBuckets(1, 1, 12),
	}, []string{metrics.LabelSuccess})
)
