package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"mini/internal/logging"
)

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port" mapstructure:"prometheus_port"`
}

// Metrics exposes run instrumentation through an OTel meter backed by a
// Prometheus exporter. A nil *Metrics is valid and records nothing, so
// callers never need to guard instrumentation sites.
type Metrics struct {
	meter metric.Meter

	agentSteps      metric.Int64Counter
	modelRequests   metric.Int64Counter
	tokensInput     metric.Int64Counter
	tokensOutput    metric.Int64Counter
	modelCost       metric.Float64Counter
	commandRuns     metric.Int64Counter
	commandDuration metric.Float64Histogram

	server *http.Server
	logger logging.Logger
}

// NewMetrics creates a metrics collector. When disabled it returns nil, which
// every recording method treats as a no-op.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if !config.Enabled {
		return nil, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("mini")

	m := &Metrics{
		meter:  meter,
		logger: logging.NewComponentLogger("metrics"),
	}

	if m.agentSteps, err = meter.Int64Counter(
		"mini.agent.steps.total",
		metric.WithDescription("Completed command-execution steps"),
		metric.WithUnit("{step}"),
	); err != nil {
		return nil, fmt.Errorf("create agent steps counter: %w", err)
	}

	if m.modelRequests, err = meter.Int64Counter(
		"mini.model.requests.total",
		metric.WithDescription("Successful model completions"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("create model requests counter: %w", err)
	}

	if m.tokensInput, err = meter.Int64Counter(
		"mini.model.tokens.input",
		metric.WithDescription("Prompt tokens sent to the model"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("create input tokens counter: %w", err)
	}

	if m.tokensOutput, err = meter.Int64Counter(
		"mini.model.tokens.output",
		metric.WithDescription("Completion tokens returned by the model"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("create output tokens counter: %w", err)
	}

	if m.modelCost, err = meter.Float64Counter(
		"mini.model.cost.usd",
		metric.WithDescription("Accumulated model spend"),
		metric.WithUnit("USD"),
	); err != nil {
		return nil, fmt.Errorf("create cost counter: %w", err)
	}

	if m.commandRuns, err = meter.Int64Counter(
		"mini.exec.commands.total",
		metric.WithDescription("Commands executed"),
		metric.WithUnit("{command}"),
	); err != nil {
		return nil, fmt.Errorf("create command counter: %w", err)
	}

	if m.commandDuration, err = meter.Float64Histogram(
		"mini.exec.command.duration",
		metric.WithDescription("Command wall time"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create command duration histogram: %w", err)
	}

	if config.PrometheusPort > 0 {
		m.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", config.PrometheusPort),
			Handler:           promclient.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				m.logger.Error("Prometheus server failed: %v", err)
			}
		}()
		m.logger.Info("Prometheus metrics listening on :%d", config.PrometheusPort)
	}

	return m, nil
}

// RecordStep counts one completed execution step.
func (m *Metrics) RecordStep(ctx context.Context) {
	if m == nil {
		return
	}
	m.agentSteps.Add(ctx, 1)
}

// RecordModelUsage counts one successful completion with its token usage and cost.
func (m *Metrics) RecordModelUsage(ctx context.Context, model string, promptTokens, completionTokens int, cost float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.modelRequests.Add(ctx, 1, attrs)
	m.tokensInput.Add(ctx, int64(promptTokens), attrs)
	m.tokensOutput.Add(ctx, int64(completionTokens), attrs)
	m.modelCost.Add(ctx, cost, attrs)
}

// RecordCommand counts one command execution and its duration.
func (m *Metrics) RecordCommand(ctx context.Context, exitCode int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Int("exit_code", exitCode))
	m.commandRuns.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, duration.Seconds(), attrs)
}

// Shutdown stops the Prometheus endpoint if one was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
