package gocbbridge

import (
	"runtime/debug"
	"time"

	"github.com/couchbase/gocbcore/v10"
)

// kvBridge runs operations against the agent of one bucket. Every operation it is given
// is delivered exactly once, whether it fails to submit or completes on a native
// goroutine.
type kvBridge struct {
	bucket   string
	provider kvProvider
	tracing  *tracerComponent
	lock     executionLock
	poller   *durabilityPoller
}

func newKVBridge(bucket string, provider kvProvider, tracing *tracerComponent, lock executionLock,
	pollInterval time.Duration) *kvBridge {
	return &kvBridge{
		bucket:   bucket,
		provider: provider,
		tracing:  tracing,
		lock:     lock,
		poller:   newDurabilityPoller(provider, pollInterval),
	}
}

// run submits one validated operation. deliver receives its single Outcome, on the
// calling goroutine when submission fails and on a native goroutine otherwise.
//
// The caller must hold the execution lock, if one is configured. It is given up for
// the duration of the submission.
func (b *kvBridge) run(desc *opDescriptor, deliver func(Outcome)) {
	trace := b.tracing.CreateOpTrace(desc)
	finish := func(outcome Outcome) {
		trace.Finish(outcome)
		b.tracing.ResponseValueRecord(desc.kind, outcome, trace.Elapsed())
		deliver(outcome)
	}

	reacquire := b.lock.relinquish()
	defer reacquire()

	if err := b.submit(desc, trace, finish); err != nil {
		logDebugf("Submission of %s for %s failed: %v", desc.kind, keyForLog(desc.target.Bucket,
			desc.target.Scope, desc.target.Collection, desc.key), err)
		finish(failureOutcome(newOperationError(ErrorClassNative, desc, desc.kind, err)))
	}
}

// deliverLocal hands over an outcome produced on the calling goroutine. The execution
// lock is given up meanwhile so that a continuation can take it as it would on a native
// goroutine.
func deliverLocal(lock executionLock, outcome Outcome, deliver func(Outcome)) {
	reacquire := lock.relinquish()
	defer reacquire()

	deliver(outcome)
}

// submit builds the native request for the descriptor and hands it to the agent. A
// returned error means the callback will never be invoked.
func (b *kvBridge) submit(desc *opDescriptor, trace *opTracer, finish func(Outcome)) error {
	deadline := desc.deadline()
	complete := func(resp *nativeResponse, err error) {
		finish(adaptResponse(desc, resp, err))
	}

	if desc.durability.legacy != nil {
		req, err := b.poller.prepare(desc, deadline, trace)
		if err != nil {
			return err
		}
		complete = b.poller.chain(req, complete)
	}

	key := []byte(desc.key)
	scope := desc.target.Scope
	collection := desc.target.Collection
	traceCtx := trace.RootContext()

	var durabilityTimeout time.Duration
	if desc.durability.level > 0 {
		durabilityTimeout = desc.timeout
	}

	var err error
	switch desc.kind {
	case OpGet:
		_, err = b.provider.Get(gocbcore.GetOptions{
			Key:            key,
			ScopeName:      scope,
			CollectionName: collection,
			Deadline:       deadline,
			TraceContext:   traceCtx,
		}, func(res *gocbcore.GetResult, err error) {
			if err != nil {
				complete(nil, err)
				return
			}
			complete(&nativeResponse{cas: res.Cas, value: res.Value, flags: res.Flags, datatype: res.Datatype}, nil)
		})
	case OpExists:
		_, err = b.provider.GetMeta(gocbcore.GetMetaOptions{
			Key:            key,
			ScopeName:      scope,
			CollectionName: collection,
			Deadline:       deadline,
			TraceContext:   traceCtx,
		}, func(res *gocbcore.GetMetaResult, err error) {
			if err != nil {
				complete(nil, err)
				return
			}
			complete(&nativeResponse{cas: res.Cas, deleted: res.Deleted != 0}, nil)
		})
	case OpTouch:
		_, err = b.provider.Touch(gocbcore.TouchOptions{
			Key:            key,
			Expiry:         desc.expiry,
			ScopeName:      scope,
			CollectionName: collection,
			Deadline:       deadline,
			TraceContext:   traceCtx,
		}, func(res *gocbcore.TouchResult, err error) {
			if err != nil {
				complete(nil, err)
				return
			}
			complete(&nativeResponse{cas: res.Cas, mutationToken: res.MutationToken}, nil)
		})
	case OpUnlock:
		_, err = b.provider.Unlock(gocbcore.UnlockOptions{
			Key:            key,
			Cas:            desc.cas,
			ScopeName:      scope,
			CollectionName: collection,
			Deadline:       deadline,
			TraceContext:   traceCtx,
		}, func(res *gocbcore.UnlockResult, err error) {
			if err != nil {
				complete(nil, err)
				return
			}
			complete(&nativeResponse{cas: res.Cas, mutationToken: res.MutationToken}, nil)
		})
	case OpGetAndLock:
		_, err = b.provider.GetAndLock(gocbcore.GetAndLockOptions{
			Key:            key,
			LockTime:       desc.lockTime,
			ScopeName:      scope,
			CollectionName: collection,
			Deadline:       deadline,
			TraceContext:   traceCtx,
		}, func(res *gocbcore.GetAndLockResult, err error) {
			if err != nil {
				complete(nil, err)
				return
			}
			complete(&nativeResponse{cas: res.Cas, value: res.Value, flags: res.Flags, datatype: res.Datatype}, nil)
		})
	case OpGetAndTouch:
		_, err = b.provider.GetAndTouch(gocbcore.GetAndTouchOptions{
			Key:            key,
			Expiry:         desc.expiry,
			ScopeName:      scope,
			CollectionName: collection,
			Deadline:       deadline,
			TraceContext:   traceCtx,
		}, func(res *gocbcore.GetAndTouchResult, err error) {
			if err != nil {
				complete(nil, err)
				return
			}
			complete(&nativeResponse{cas: res.Cas, value: res.Value, flags: res.Flags, datatype: res.Datatype}, nil)
		})
	case OpGetProjected:
		err = b.getProjected(desc, deadline, traceCtx, complete)
	case OpGetAnyReplica:
		err = b.getAnyReplica(desc, deadline, traceCtx, complete)
	case OpGetAllReplicas:
		err = b.getAllReplicas(desc, deadline, traceCtx, complete)
	case OpInsert:
		_, err = b.provider.Add(gocbcore.AddOptions{
			Key:                    key,
			Value:                  desc.value,
			Flags:                  desc.flags,
			Expiry:                 desc.expiry,
			DurabilityLevel:        desc.durability.level,
			DurabilityLevelTimeout: durabilityTimeout,
			ScopeName:              scope,
			CollectionName:         collection,
			Deadline:               deadline,
			TraceContext:           traceCtx,
		}, storeCallback(complete))
	case OpUpsert:
		_, err = b.provider.Set(gocbcore.SetOptions{
			Key:                    key,
			Value:                  desc.value,
			Flags:                  desc.flags,
			Expiry:                 desc.expiry,
			PreserveExpiry:         desc.preserveExpiry,
			DurabilityLevel:        desc.durability.level,
			DurabilityLevelTimeout: durabilityTimeout,
			ScopeName:              scope,
			CollectionName:         collection,
			Deadline:               deadline,
			TraceContext:           traceCtx,
		}, storeCallback(complete))
	case OpReplace:
		_, err = b.provider.Replace(gocbcore.ReplaceOptions{
			Key:                    key,
			Value:                  desc.value,
			Flags:                  desc.flags,
			Cas:                    desc.cas,
			Expiry:                 desc.expiry,
			PreserveExpiry:         desc.preserveExpiry,
			DurabilityLevel:        desc.durability.level,
			DurabilityLevelTimeout: durabilityTimeout,
			ScopeName:              scope,
			CollectionName:         collection,
			Deadline:               deadline,
			TraceContext:           traceCtx,
		}, storeCallback(complete))
	case OpRemove:
		_, err = b.provider.Delete(gocbcore.DeleteOptions{
			Key:                    key,
			Cas:                    desc.cas,
			DurabilityLevel:        desc.durability.level,
			DurabilityLevelTimeout: durabilityTimeout,
			ScopeName:              scope,
			CollectionName:         collection,
			Deadline:               deadline,
			TraceContext:           traceCtx,
		}, func(res *gocbcore.DeleteResult, err error) {
			if err != nil {
				complete(nil, err)
				return
			}
			complete(&nativeResponse{cas: res.Cas, mutationToken: res.MutationToken}, nil)
		})
	case OpIncrement, OpDecrement:
		opts := gocbcore.CounterOptions{
			Key:                    key,
			Delta:                  desc.delta,
			Initial:                desc.initial,
			Expiry:                 desc.expiry,
			DurabilityLevel:        desc.durability.level,
			DurabilityLevelTimeout: durabilityTimeout,
			ScopeName:              scope,
			CollectionName:         collection,
			Deadline:               deadline,
			TraceContext:           traceCtx,
		}
		cb := func(res *gocbcore.CounterResult, err error) {
			if err != nil {
				complete(nil, err)
				return
			}
			complete(&nativeResponse{cas: res.Cas, mutationToken: res.MutationToken, counter: res.Value}, nil)
		}
		if desc.kind == OpIncrement {
			_, err = b.provider.Increment(opts, cb)
		} else {
			_, err = b.provider.Decrement(opts, cb)
		}
	case OpAppend, OpPrepend:
		opts := gocbcore.AdjoinOptions{
			Key:                    key,
			Value:                  desc.value,
			Cas:                    desc.cas,
			DurabilityLevel:        desc.durability.level,
			DurabilityLevelTimeout: durabilityTimeout,
			ScopeName:              scope,
			CollectionName:         collection,
			Deadline:               deadline,
			TraceContext:           traceCtx,
		}
		cb := func(res *gocbcore.AdjoinResult, err error) {
			if err != nil {
				complete(nil, err)
				return
			}
			complete(&nativeResponse{cas: res.Cas, mutationToken: res.MutationToken}, nil)
		}
		if desc.kind == OpAppend {
			_, err = b.provider.Append(opts, cb)
		} else {
			_, err = b.provider.Prepend(opts, cb)
		}
	default:
		err = wrapErrorf(ErrInvalidArgument, "unrecognized operation kind %d", int(desc.kind))
	}

	return err
}

func storeCallback(complete func(*nativeResponse, error)) gocbcore.StoreCallback {
	return func(res *gocbcore.StoreResult, err error) {
		if err != nil {
			complete(nil, err)
			return
		}
		complete(&nativeResponse{cas: res.Cas, mutationToken: res.MutationToken}, nil)
	}
}

// continuationDelivery returns the delivery used in callback mode. The caller's
// continuations run under the execution lock with the single outcome, and a panic in
// one of them is contained so it never unwinds a native goroutine.
func continuationDelivery(lock executionLock, desc *opDescriptor, opts *Options) func(Outcome) {
	return func(outcome Outcome) {
		release := lock.hold()
		defer release()

		defer func() {
			if r := recover(); r != nil {
				logErrorf("Continuation for %s of %s panicked: %v\n%s", desc.kind,
					redactUserData(desc.key), r, debug.Stack())
			}
		}()

		if outcome.Succeeded() {
			if opts.Callback == nil {
				logWarnf("No callback registered for successful %s of %s, dropping result", desc.kind,
					redactUserData(desc.key))
				return
			}
			opts.Callback(outcome.Result())
			return
		}

		if opts.Errback == nil {
			logWarnf("No errback registered for failed %s of %s, dropping error: %v", desc.kind,
				redactUserData(desc.key), outcome.Err())
			return
		}
		opts.Errback(outcome.Err())
	}
}
