// Package observe OpenTelemetry指标，经Prometheus exporter在 /metrics 暴露。
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "cn-chinese-link"

// Metrics 全部指标，OTel类型自身并发安全
type Metrics struct {
	LLMDuration metric.Float64Histogram
	TTSDuration metric.Float64Histogram
	ASRDuration metric.Float64Histogram

	// 按 provider / kind / status 统计
	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter

	// 按 role / scene
	ConversationsStarted metric.Int64Counter
	MessagesSent         metric.Int64Counter
	// 模型输出无法解析、用了兜底回复
	FallbackReplies metric.Int64Counter

	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.LLMDuration, err = m.Float64Histogram("cnlink.llm.duration",
		metric.WithDescription("Latency of LLM chat completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("cnlink.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ASRDuration, err = m.Float64Histogram("cnlink.asr.duration",
		metric.WithDescription("Latency of speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("cnlink.provider.requests",
		metric.WithDescription("Provider API requests by provider, kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("cnlink.provider.errors",
		metric.WithDescription("Provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ConversationsStarted, err = m.Int64Counter("cnlink.conversations.started",
		metric.WithDescription("Conversations started by role and scene."),
	); err != nil {
		return nil, err
	}
	if met.MessagesSent, err = m.Int64Counter("cnlink.messages.sent",
		metric.WithDescription("User messages by role and scene."),
	); err != nil {
		return nil, err
	}
	if met.FallbackReplies, err = m.Int64Counter("cnlink.llm.fallback_replies",
		metric.WithDescription("Replies replaced by the fallback because the model output was not valid JSON."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("cnlink.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics 使用全局MeterProvider，InitProvider之后调用才会被导出
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProvider 记录一次外部服务调用的耗时和结果
func (m *Metrics) RecordProvider(ctx context.Context, kind, provider string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		))
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))

	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	switch kind {
	case "llm":
		m.LLMDuration.Record(ctx, elapsed, attrs)
	case "tts":
		m.TTSDuration.Record(ctx, elapsed, attrs)
	case "asr":
		m.ASRDuration.Record(ctx, elapsed, attrs)
	}
}

func (m *Metrics) ConversationStarted(ctx context.Context, role, scene string) {
	if m == nil {
		return
	}
	m.ConversationsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("scene", scene),
	))
}

func (m *Metrics) MessageSent(ctx context.Context, role, scene string) {
	if m == nil {
		return
	}
	m.MessagesSent.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("scene", scene),
	))
}

func (m *Metrics) FallbackReply(ctx context.Context) {
	if m == nil {
		return
	}
	m.FallbackReplies.Add(ctx, 1)
}

// RecordHTTP route为路由模板，未匹配路由时为空
func (m *Metrics) RecordHTTP(ctx context.Context, method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}
