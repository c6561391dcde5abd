package compose

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/laconorg/deployer/pkg/metrics"
)

var (
	commandDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Name:      "command_duration_seconds",
		Help:      "Duration of container runtime commands, in seconds.",
		Buckets:   stdprometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{metrics.LabelCommand, metrics.LabelSuccess})
)
