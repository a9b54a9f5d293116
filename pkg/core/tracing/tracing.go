// Package tracing implements the Tracing Shim (C9): optional OTEL
// instrumentation wrapped around the Provider, Role Agent, and Judge ports,
// grounded on the teacher corpus's ObservedProvider pattern (every
// span/metric/log wraps a single delegated call and never changes its
// return value). A tracing failure — exporter construction, span start,
// metric record — degrades to a no-op rather than affecting the debate: Init
// falls back to Noop() on any setup error instead of propagating it, and
// every wrapper nil-checks its Instruments before touching them.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	noopotellog "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/slior/dialectic/pkg/core/llm"
	"github.com/slior/dialectic/pkg/core/model"
	"github.com/slior/dialectic/pkg/core/orchestrator"
)

const scopeName = "github.com/slior/dialectic/pkg/core/tracing"

// Attribute keys shared by every span and metric this package emits.
var (
	attrProvider  = attribute.Key("llm.provider")
	attrModel     = attribute.Key("llm.model")
	attrAgentID   = attribute.Key("agent.id")
	attrAgentRole = attribute.Key("agent.role")
	attrStatus    = attribute.Key("status")
)

// Instruments holds the OTEL handles the wrappers in this package record
// against. The zero value is not meaningful on its own; use Noop() or Init.
type Instruments struct {
	Tracer trace.Tracer
	Logger otellog.Logger

	LLMDuration metric.Float64Histogram
	LLMRequests metric.Int64Counter
	TokenUsage  metric.Int64Counter

	AgentDuration metric.Float64Histogram
}

// Noop returns Instruments backed entirely by OTEL's no-op implementations:
// every span/metric call becomes a cheap discard. Used both as Init's
// fallback on setup failure and as the default when tracing is disabled.
func Noop() *Instruments {
	tracer := nooptrace.NewTracerProvider().Tracer(scopeName)
	meter := noopmetric.NewMeterProvider().Meter(scopeName)
	logger := noopotellog.NewLoggerProvider().Logger(scopeName)
	dur, _ := meter.Float64Histogram("llm.duration_ms")
	reqs, _ := meter.Int64Counter("llm.requests")
	tok, _ := meter.Int64Counter("llm.tokens")
	agentDur, _ := meter.Float64Histogram("agent.duration_ms")
	return &Instruments{Tracer: tracer, Logger: logger, LLMDuration: dur, LLMRequests: reqs, TokenUsage: tok, AgentDuration: agentDur}
}

// Init wires a real OTLP-over-HTTP trace and metric pipeline, configured
// entirely from the standard OTEL_EXPORTER_OTLP_* environment variables. On
// any setup error it logs nothing and silently returns Noop() instead of
// err — the debate must run exactly the same with or without an observed
// backend. The returned shutdown func flushes exporters on exit; it is a
// no-op when Init fell back to Noop().
func Init(ctx context.Context, serviceName string) (*Instruments, func(context.Context) error) {
	noopShutdown := func(context.Context) error { return nil }

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)), resource.WithFromEnv())
	if err != nil {
		return Noop(), noopShutdown
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return Noop(), noopShutdown
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return Noop(), noopShutdown
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)), sdkmetric.WithResource(res))

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return Noop(), noopShutdown
	}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)), sdklog.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)

	meter := mp.Meter(scopeName)
	dur, _ := meter.Float64Histogram("llm.duration_ms")
	reqs, _ := meter.Int64Counter("llm.requests")
	tok, _ := meter.Int64Counter("llm.tokens")
	agentDur, _ := meter.Float64Histogram("agent.duration_ms")

	inst := &Instruments{Tracer: tp.Tracer(scopeName), Logger: lp.Logger(scopeName), LLMDuration: dur, LLMRequests: reqs, TokenUsage: tok, AgentDuration: agentDur}
	shutdown := func(ctx context.Context) error {
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return tp.Shutdown(ctx)
	}
	return inst, shutdown
}

// TracedProvider wraps an llm.Provider with a span and duration/token
// metrics per Complete call.
type TracedProvider struct {
	inner llm.Provider
	inst  *Instruments
	model string
}

var _ llm.Provider = (*TracedProvider)(nil)

// WrapProvider instruments inner. inst may be nil, in which case the
// wrapper degrades to a plain passthrough.
func WrapProvider(inner llm.Provider, model string, inst *Instruments) *TracedProvider {
	if inst == nil {
		inst = Noop()
	}
	return &TracedProvider{inner: inner, inst: inst, model: model}
}

func (p *TracedProvider) Name() string { return p.inner.Name() }

func (p *TracedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	ctx, span := p.inst.Tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attrProvider.String(p.inner.Name()), attrModel.String(p.model),
	))
	defer span.End()
	start := time.Now()

	res, err := p.inner.Complete(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if res.Usage != nil {
		span.SetAttributes(attribute.Int("llm.tokens.input", res.Usage.InputTokens), attribute.Int("llm.tokens.output", res.Usage.OutputTokens))
		p.inst.TokenUsage.Add(ctx, int64(res.Usage.InputTokens+res.Usage.OutputTokens), metric.WithAttributes(attrProvider.String(p.inner.Name())))
	}
	p.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(attrProvider.String(p.inner.Name()), attrStatus.String(status)))
	p.inst.LLMDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrProvider.String(p.inner.Name())))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("llm call completed"))
	rec.AddAttributes(
		otellog.String("llm.provider", p.inner.Name()),
		otellog.String("llm.model", p.model),
		otellog.String("status", status),
		otellog.Float64("llm.duration_ms", float64(time.Since(start).Milliseconds())),
	)
	p.inst.Logger.Emit(ctx, rec)

	return res, err
}

// TracedAgent wraps an orchestrator.Agent so every Propose/Critique/Refine
// call gets a span named after the phase plus a duration metric.
type TracedAgent struct {
	inner orchestrator.Agent
	inst  *Instruments
}

var _ orchestrator.Agent = (*TracedAgent)(nil)

// WrapAgent instruments inner. inst may be nil.
func WrapAgent(inner orchestrator.Agent, inst *Instruments) *TracedAgent {
	if inst == nil {
		inst = Noop()
	}
	return &TracedAgent{inner: inner, inst: inst}
}

func (a *TracedAgent) AgentID() string         { return a.inner.AgentID() }
func (a *TracedAgent) Role() model.AgentRole { return a.inner.Role() }

func (a *TracedAgent) span(ctx context.Context, name string) (context.Context, trace.Span) {
	return a.inst.Tracer.Start(ctx, name, trace.WithAttributes(
		attrAgentID.String(a.inner.AgentID()), attrAgentRole.String(string(a.inner.Role())),
	))
}

func (a *TracedAgent) record(ctx context.Context, span trace.Span, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	a.inst.AgentDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		attrAgentID.String(a.inner.AgentID()),
	))
}

func (a *TracedAgent) Propose(ctx context.Context, dctx model.DebateContext) (model.Contribution, error) {
	ctx, span := a.span(ctx, "agent.propose")
	start := time.Now()
	c, err := a.inner.Propose(ctx, dctx)
	a.record(ctx, span, start, err)
	return c, err
}

func (a *TracedAgent) Critique(ctx context.Context, dctx model.DebateContext, target model.Contribution) (model.Contribution, error) {
	ctx, span := a.span(ctx, "agent.critique")
	start := time.Now()
	c, err := a.inner.Critique(ctx, dctx, target)
	a.record(ctx, span, start, err)
	return c, err
}

func (a *TracedAgent) Refine(ctx context.Context, dctx model.DebateContext, ownPrior model.Contribution, critiques []model.Contribution) (model.Contribution, error) {
	ctx, span := a.span(ctx, "agent.refine")
	start := time.Now()
	c, err := a.inner.Refine(ctx, dctx, ownPrior, critiques)
	a.record(ctx, span, start, err)
	return c, err
}

// PrepareContext itself is not spanned (it's an in-process decision), but it
// may now call out to a provider to produce a summary, so ctx still flows
// through to the wrapped agent unchanged.
func (a *TracedAgent) PrepareContext(ctx context.Context, dctx model.DebateContext, cfg *model.SummarizationConfig) (model.DebateContext, *model.DebateSummary) {
	return a.inner.PrepareContext(ctx, dctx, cfg)
}

// AskClarifyingQuestions delegates to the wrapped agent when it can ask
// clarifying questions; otherwise it asks none.
func (a *TracedAgent) AskClarifyingQuestions(ctx context.Context, problem string, max int) ([]model.ClarificationItem, error) {
	asker, ok := a.inner.(interface {
		AskClarifyingQuestions(context.Context, string, int) ([]model.ClarificationItem, error)
	})
	if !ok {
		return nil, nil
	}
	return asker.AskClarifyingQuestions(ctx, problem, max)
}

// TracedJudge wraps an orchestrator.Judge with a span around Synthesize.
type TracedJudge struct {
	inner orchestrator.Judge
	inst  *Instruments
}

var _ orchestrator.Judge = (*TracedJudge)(nil)

// WrapJudge instruments inner. inst may be nil.
func WrapJudge(inner orchestrator.Judge, inst *Instruments) *TracedJudge {
	if inst == nil {
		inst = Noop()
	}
	return &TracedJudge{inner: inner, inst: inst}
}

func (j *TracedJudge) Synthesize(ctx context.Context, cfg model.DebateConfig, rounds []model.DebateRound, problem string) model.Solution {
	ctx, span := j.inst.Tracer.Start(ctx, "judge.synthesize", trace.WithAttributes(attribute.Int("debate.rounds", len(rounds))))
	defer span.End()
	start := time.Now()

	solution := j.inner.Synthesize(ctx, cfg, rounds, problem)

	span.SetAttributes(attribute.Int("judge.confidence", solution.Confidence))
	j.inst.AgentDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attribute.String("agent.id", "judge")))
	return solution
}
