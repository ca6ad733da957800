package gocbbridge

import (
	"github.com/couchbase/gocbcore/v10"
)

type tracerWrapper struct {
	tracer                   gocbcore.RequestTracer
	includeLegacyConventions bool
	includeStableConventions bool
}

func newTracerWrapper(tracer gocbcore.RequestTracer, conventionOptIn []ObservabilitySemanticConvention) *tracerWrapper {
	reqTracer := tracer
	if reqTracer == nil {
		reqTracer = noopTracer{}
	}

	tw := &tracerWrapper{
		tracer: reqTracer,
	}
	tw.includeLegacyConventions, tw.includeStableConventions = resolveConventions(conventionOptIn)

	return tw
}

// resolveConventions returns whether the legacy and the stable conventions are emitted.
func resolveConventions(conventionOptIn []ObservabilitySemanticConvention) (legacy bool, stable bool) {
	if len(conventionOptIn) == 0 {
		// We only emit the legacy conventions by default
		return true, false
	}

	for _, convention := range conventionOptIn {
		switch convention {
		case ObservabilitySemanticConventionDatabase:
			stable = true
		case ObservabilitySemanticConventionDatabaseDup:
			legacy = true
			stable = true
		}
	}
	return legacy, stable
}

func (tw *tracerWrapper) StartSpan(context gocbcore.RequestSpanContext, name string) *spanWrapper {
	return &spanWrapper{
		span:                     tw.tracer.RequestSpan(context, name),
		includeLegacyConventions: tw.includeLegacyConventions,
		includeStableConventions: tw.includeStableConventions,
	}
}

type spanWrapper struct {
	span                     gocbcore.RequestSpan
	includeLegacyConventions bool
	includeStableConventions bool
}

func (sw *spanWrapper) End() {
	sw.span.End()
}

func (sw *spanWrapper) Context() gocbcore.RequestSpanContext {
	return sw.span.Context()
}

func (sw *spanWrapper) SetSystemName() {
	if sw.includeLegacyConventions {
		sw.span.SetAttribute("db.system", "couchbase")
	}
	if sw.includeStableConventions {
		sw.span.SetAttribute("db.system.name", "couchbase")
	}
}

func (sw *spanWrapper) SetService(service string) {
	if sw.includeLegacyConventions {
		sw.span.SetAttribute("db.couchbase.service", service)
	}
	if sw.includeStableConventions {
		sw.span.SetAttribute("couchbase.service", service)
	}
}

func (sw *spanWrapper) SetOperationName(name string) {
	if sw.includeLegacyConventions {
		sw.span.SetAttribute("db.operation", name)
	}
	if sw.includeStableConventions {
		sw.span.SetAttribute("db.operation.name", name)
	}
}

func (sw *spanWrapper) SetOperationID(id string) {
	if sw.includeLegacyConventions {
		sw.span.SetAttribute("db.couchbase.operation_id", id)
	}
	if sw.includeStableConventions {
		sw.span.SetAttribute("couchbase.operation_id", id)
	}
}

func (sw *spanWrapper) SetNamespace(bucket, scope, collection string) {
	if sw.includeLegacyConventions {
		sw.span.SetAttribute("db.name", bucket)
		if scope != "" {
			sw.span.SetAttribute("db.couchbase.scope", scope)
			sw.span.SetAttribute("db.couchbase.collection", collection)
		}
	}
	if sw.includeStableConventions {
		sw.span.SetAttribute("db.namespace", bucket)
		if scope != "" {
			sw.span.SetAttribute("couchbase.scope.name", scope)
			sw.span.SetAttribute("couchbase.collection.name", collection)
		}
	}
}

func (sw *spanWrapper) SetDurability(durability resolvedDurability) {
	value := "legacy"
	if durability.legacy == nil {
		value = durabilityLevelFromMemd(durability.level).String()
	}

	if sw.includeLegacyConventions {
		sw.span.SetAttribute("db.couchbase.durability", value)
	}
	if sw.includeStableConventions {
		sw.span.SetAttribute("couchbase.durability", value)
	}
}

func (sw *spanWrapper) SetErrorClass(class ErrorClass) {
	if sw.includeLegacyConventions {
		sw.span.SetAttribute("db.couchbase.error_class", class.String())
	}
	if sw.includeStableConventions {
		sw.span.SetAttribute("error.type", class.String())
	}
}
