package deploy

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/laconorg/deployer/pkg/metrics"
)

var (
	// Most of a deployment is pulling images, then waiting for the
	// service to settle; a healthy forward deployment takes about
	// half a minute, a rollback at least twice that.
	deployDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Name:      "deploy_duration_seconds",
		Help:      "Duration of deployments, in seconds.",
		Buckets:   []float64{5, 10, 20, 30, 45, 60, 90, 120, 180, 240, 300, 600},
	}, []string{metrics.LabelOutcome})

	stageCount = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Name:      "stage_total",
		Help:      "Count of deployment stages reached, and whether each went well.",
	}, []string{metrics.LabelStage, metrics.LabelSuccess})
)
