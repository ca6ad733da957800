package gocbbridge

import (
	"time"

	"github.com/couchbase/gocbcore/v10"
)

// ObservabilitySemanticConvention selects which attribute naming conventions spans and
// metrics are emitted with.
type ObservabilitySemanticConvention uint8

const (
	// ObservabilitySemanticConventionDatabase emits only the stable database conventions.
	ObservabilitySemanticConventionDatabase ObservabilitySemanticConvention = iota + 1

	// ObservabilitySemanticConventionDatabaseDup emits both the legacy and the stable
	// database conventions.
	ObservabilitySemanticConventionDatabaseDup
)

type noopSpan struct{}
type noopSpanContext struct{}

var (
	defaultNoopSpanContext = noopSpanContext{}
	defaultNoopSpan        = noopSpan{}
)

type noopTracer struct {
}

func (tracer noopTracer) RequestSpan(parentContext gocbcore.RequestSpanContext, operationName string) gocbcore.RequestSpan {
	return defaultNoopSpan
}

func (span noopSpan) End() {
}

func (span noopSpan) Context() gocbcore.RequestSpanContext {
	return defaultNoopSpanContext
}

func (span noopSpan) SetAttribute(key string, value interface{}) {
}

func (span noopSpan) AddEvent(key string, timestamp time.Time) {
}

// opTracer tracks the span of one bridge operation from submission to delivery.
type opTracer struct {
	parentContext gocbcore.RequestSpanContext
	opSpan        *spanWrapper
	start         time.Time
}

func (tracer *opTracer) Finish(outcome Outcome) {
	if tracer.opSpan == nil {
		return
	}
	if opErr := outcome.OperationError(); opErr != nil {
		tracer.opSpan.SetErrorClass(opErr.Class)
	}
	tracer.opSpan.End()
}

// RootContext is the context the native request is parented on.
func (tracer *opTracer) RootContext() gocbcore.RequestSpanContext {
	if tracer.opSpan != nil {
		return tracer.opSpan.Context()
	}

	return tracer.parentContext
}

func (tracer *opTracer) Elapsed() time.Duration {
	return time.Since(tracer.start)
}

func (tracer *opTracer) AddEvent(name string) {
	if tracer.opSpan != nil {
		tracer.opSpan.span.AddEvent(name, time.Now())
	}
}

type tracerComponent struct {
	tracer           *tracerWrapper
	meter            *meterWrapper
	noRootTraceSpans bool
}

func newTracerComponent(tracer gocbcore.RequestTracer, meter gocbcore.Meter, conventions []ObservabilitySemanticConvention,
	noRootTraceSpans bool) *tracerComponent {
	return &tracerComponent{
		tracer:           newTracerWrapper(tracer, conventions),
		meter:            newMeterWrapper(meter, conventions),
		noRootTraceSpans: noRootTraceSpans,
	}
}

// CreateOpTrace opens the span for one operation against a target.
func (tc *tracerComponent) CreateOpTrace(desc *opDescriptor) *opTracer {
	parentContext := desc.traceParent()
	if tc.noRootTraceSpans {
		return &opTracer{
			parentContext: parentContext,
			start:         time.Now(),
		}
	}

	opSpan := tc.tracer.StartSpan(parentContext, desc.kind.String())
	opSpan.SetSystemName()
	opSpan.SetService("kv")
	opSpan.SetOperationName(desc.kind.String())
	opSpan.SetOperationID(desc.opID)
	opSpan.SetNamespace(desc.target.Bucket, desc.target.Scope, desc.target.Collection)
	if desc.durability.isSet() {
		opSpan.SetDurability(desc.durability)
	}

	return &opTracer{
		parentContext: parentContext,
		opSpan:        opSpan,
		start:         time.Now(),
	}
}

// ResponseValueRecord records the latency and the outcome class of a completed operation.
func (tc *tracerComponent) ResponseValueRecord(kind OpKind, outcome Outcome, elapsed time.Duration) {
	tc.meter.RecordOperation("kv", kind.String(), uint64(elapsed.Microseconds()))
	tc.meter.RecordOutcome(kind.String(), outcomeLabel(outcome))
}

func outcomeLabel(outcome Outcome) string {
	if outcome.Succeeded() {
		return "success"
	}
	return outcome.OperationError().Class.String()
}
