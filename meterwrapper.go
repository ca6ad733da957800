package gocbbridge

import (
	"sync"

	"github.com/couchbase/gocbcore/v10"
)

const (
	meterNameOperations      = "db.couchbase.operations"
	meterNameStableDuration  = "db.client.operation.duration"
	meterNameBridgeOutcomes  = "db.couchbase.bridge.outcomes"
	meterAttribOutcome       = "outcome"
	meterAttribLegacyService = "db.couchbase.service"
	meterAttribLegacyOp      = "db.operation"
)

type meterWrapper struct {
	meter                    gocbcore.Meter
	includeLegacyConventions bool
	includeStableConventions bool
	attributesCache          sync.Map
}

func newMeterWrapper(meter gocbcore.Meter, conventionOptIn []ObservabilitySemanticConvention) *meterWrapper {
	mw := &meterWrapper{meter: meter}
	mw.includeLegacyConventions, mw.includeStableConventions = resolveConventions(conventionOptIn)
	return mw
}

func (mw *meterWrapper) recordValue(name string, attributes map[string]string, value uint64) {
	if mw.meter == nil {
		return
	}
	recorder, err := mw.meter.ValueRecorder(name, attributes)
	if err != nil {
		logDebugf("Failed to get value recorder: %v", err)
		return
	}
	recorder.RecordValue(value)
}

func (mw *meterWrapper) RecordOperation(service, operation string, durationMicroseconds uint64) {
	if mw.meter == nil {
		return
	}

	if mw.includeLegacyConventions {
		key := "v0." + service + "." + operation
		attribs, ok := mw.attributesCache.Load(key)
		if !ok {
			attribs = map[string]string{
				meterAttribLegacyService: service,
			}
			if operation != "" {
				attribs.(map[string]string)[meterAttribLegacyOp] = operation
			}
			mw.attributesCache.Store(key, attribs)
		}
		mw.recordValue(meterNameOperations, attribs.(map[string]string), durationMicroseconds)
	}

	if mw.includeStableConventions {
		key := "v1." + service + "." + operation
		attribs, ok := mw.attributesCache.Load(key)
		if !ok {
			attribs = map[string]string{
				"db.system.name":    "couchbase",
				"couchbase.service": service,
				"__unit":            "s",
			}
			if operation != "" {
				attribs.(map[string]string)["db.operation.name"] = operation
			}
			mw.attributesCache.Store(key, attribs)
		}
		mw.recordValue(meterNameStableDuration, attribs.(map[string]string), durationMicroseconds)
	}
}

// RecordOutcome counts delivered outcomes by operation and by success or error class.
func (mw *meterWrapper) RecordOutcome(operation, outcome string) {
	if mw.meter == nil {
		return
	}

	key := "outcome." + operation + "." + outcome
	attribs, ok := mw.attributesCache.Load(key)
	if !ok {
		attribs = map[string]string{
			meterAttribLegacyService: "kv",
			meterAttribLegacyOp:      operation,
			meterAttribOutcome:       outcome,
		}
		mw.attributesCache.Store(key, attribs)
	}

	counter, err := mw.meter.Counter(meterNameBridgeOutcomes, attribs.(map[string]string))
	if err != nil {
		logDebugf("Failed to get counter: %v", err)
		return
	}
	counter.IncrementBy(1)
}
