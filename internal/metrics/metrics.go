// Package metrics exposes host and prompt activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/host"
)

const namespace = "comfyflow"

// Collector counts connection level activity through host.Metrics and
// prompt level activity through LifecycleHooks.
type Collector struct {
	frames        *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	connects      prometheus.Counter
	schemaRefresh *prometheus.CounterVec
	prompts       *prometheus.CounterVec
	nodeStatus    *prometheus.CounterVec
	artifacts     *prometheus.CounterVec
	retrieval     prometheus.Histogram
	previews      prometheus.Counter
}

var (
	_ host.Metrics         = (*Collector)(nil)
	_ prometheus.Collector = (*Collector)(nil)
)

// New creates an unregistered collector.
func New() *Collector {
	return &Collector{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_frames_total",
			Help:      "Frames received over the WebSocket.",
		}, []string{"kind"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_decode_errors_total",
			Help:      "Frames dropped because they could not be decoded.",
		}, []string{"kind"}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_connects_total",
			Help:      "Successful WebSocket connections, reconnects included.",
		}),
		schemaRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_refresh_total",
			Help:      "Schema loads by outcome.",
		}, []string{"ok"}),
		prompts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompts_finished_total",
			Help:      "Prompts resolved, by final status.",
		}, []string{"status"}),
		nodeStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_updates_total",
			Help:      "Node status updates, by status.",
		}, []string{"status"}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_total",
			Help:      "Artifact retrievals, by outcome.",
		}, []string{"result"}),
		retrieval: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_retrieval_seconds",
			Help:      "Time spent fetching and writing one artifact.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		previews: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "previews_total",
			Help:      "Preview frames received.",
		}),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.frames, c.decodeErrors, c.connects, c.schemaRefresh,
		c.prompts, c.nodeStatus, c.artifacts, c.retrieval, c.previews,
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c.collectors() {
		col.Describe(ch)
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c.collectors() {
		col.Collect(ch)
	}
}

func (c *Collector) FrameReceived(kind string) { c.frames.WithLabelValues(kind).Inc() }
func (c *Collector) DecodeFailed(kind string)  { c.decodeErrors.WithLabelValues(kind).Inc() }
func (c *Collector) Connected()                { c.connects.Inc() }

func (c *Collector) SchemaRefreshed(ok bool) {
	c.schemaRefresh.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

// Hooks returns lifecycle hooks feeding the prompt level metrics.
func (c *Collector) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeStatus: func(_ context.Context, e *domain.NodeEvent) {
			c.nodeStatus.WithLabelValues(string(e.Status)).Inc()
		},
		OnPromptFinished: func(_ context.Context, e *domain.PromptEvent) {
			c.prompts.WithLabelValues(string(e.Status)).Inc()
		},
		OnPreview: func(context.Context, *domain.PreviewEvent) {
			c.previews.Inc()
		},
		OnArtifact: func(_ context.Context, e *domain.ArtifactEvent) {
			result := "saved"
			if e.Error != "" {
				result = "failed"
			}
			c.artifacts.WithLabelValues(result).Inc()
			c.retrieval.Observe(e.Duration.Seconds())
		},
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
