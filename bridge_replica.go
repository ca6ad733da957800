package gocbbridge

import (
	"sync"
	"time"

	"github.com/couchbase/gocbcore/v10"
)

// replicaRead is one fan-out of a read to the active and every replica copy.
type replicaRead struct {
	lock      sync.Mutex
	ops       []gocbcore.PendingOp
	remaining int
	done      bool

	responses   []*nativeResponse
	errs        []error
	allNotFound bool
}

func newReplicaRead(numCopies int) *replicaRead {
	return &replicaRead{
		remaining:   numCopies,
		responses:   make([]*nativeResponse, numCopies),
		errs:        make([]error, numCopies),
		allNotFound: true,
	}
}

// record stores the completion of one copy and reports whether it was the last.
func (r *replicaRead) record(replicaIdx int, resp *nativeResponse, err error) (last bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.responses[replicaIdx] = resp
	r.errs[replicaIdx] = err
	if err != nil && !isDocumentNotFound(err) {
		r.allNotFound = false
	}

	r.remaining--
	return r.remaining == 0
}

// claim marks the read as answered and returns the ops still in flight to cancel. Only
// the first claim succeeds.
func (r *replicaRead) claim() ([]gocbcore.PendingOp, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.done {
		return nil, false
	}
	r.done = true
	ops := r.ops
	r.ops = nil
	return ops, true
}

// track remembers an op for cancellation, or cancels it straight away if the read has
// already been answered.
func (r *replicaRead) track(op gocbcore.PendingOp) {
	r.lock.Lock()
	if !r.done {
		r.ops = append(r.ops, op)
		r.lock.Unlock()
		return
	}
	r.lock.Unlock()

	op.Cancel()
}

// failure is the error reported when no copy could be read.
func (r *replicaRead) failure() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.allNotFound {
		for _, err := range r.errs {
			if err != nil {
				return err
			}
		}
	}
	return wrapError(gocbcore.ErrDocumentUnretrievable, "no copy of the document could be read")
}

// fanOut reads the document from the active and every replica, passing each completion
// to onCopy with the copy's replica index, zero being the active.
func (b *kvBridge) fanOut(desc *opDescriptor, deadline time.Time, traceCtx gocbcore.RequestSpanContext,
	onCopy func(read *replicaRead, replicaIdx int, resp *nativeResponse, err error)) error {
	numReplicas, err := b.provider.NumReplicas()
	if err != nil {
		return err
	}

	read := newReplicaRead(numReplicas + 1)
	key := []byte(desc.key)

	op, err := b.provider.Get(gocbcore.GetOptions{
		Key:            key,
		ScopeName:      desc.target.Scope,
		CollectionName: desc.target.Collection,
		Deadline:       deadline,
		TraceContext:   traceCtx,
	}, func(res *gocbcore.GetResult, err error) {
		if err != nil {
			onCopy(read, 0, nil, err)
			return
		}
		onCopy(read, 0, &nativeResponse{cas: res.Cas, value: res.Value, flags: res.Flags, datatype: res.Datatype}, nil)
	})
	if err != nil {
		// Without the active there is nothing left worth waiting on.
		return err
	}
	read.track(op)

	for replicaIdx := 1; replicaIdx <= numReplicas; replicaIdx++ {
		replicaIdx := replicaIdx
		op, err := b.provider.GetOneReplica(gocbcore.GetOneReplicaOptions{
			Key:            key,
			ReplicaIdx:     replicaIdx,
			ScopeName:      desc.target.Scope,
			CollectionName: desc.target.Collection,
			Deadline:       deadline,
			TraceContext:   traceCtx,
		}, func(res *gocbcore.GetReplicaResult, err error) {
			if err != nil {
				onCopy(read, replicaIdx, nil, err)
				return
			}
			onCopy(read, replicaIdx, &nativeResponse{
				cas:       res.Cas,
				value:     res.Value,
				flags:     res.Flags,
				datatype:  res.Datatype,
				isReplica: true,
			}, nil)
		})
		if err != nil {
			onCopy(read, replicaIdx, nil, err)
			continue
		}
		read.track(op)
	}

	return nil
}

// getAnyReplica completes with the first copy read successfully and cancels the rest.
func (b *kvBridge) getAnyReplica(desc *opDescriptor, deadline time.Time, traceCtx gocbcore.RequestSpanContext,
	complete func(*nativeResponse, error)) error {
	return b.fanOut(desc, deadline, traceCtx, func(read *replicaRead, replicaIdx int, resp *nativeResponse, err error) {
		last := read.record(replicaIdx, resp, err)
		if err == nil {
			ops, won := read.claim()
			if !won {
				return
			}
			for _, op := range ops {
				op.Cancel()
			}
			complete(resp, nil)
			return
		}

		if last {
			if _, won := read.claim(); won {
				complete(nil, read.failure())
			}
		}
	})
}

// getAllReplicas waits for every copy and completes with the ones read successfully.
func (b *kvBridge) getAllReplicas(desc *opDescriptor, deadline time.Time, traceCtx gocbcore.RequestSpanContext,
	complete func(*nativeResponse, error)) error {
	return b.fanOut(desc, deadline, traceCtx, func(read *replicaRead, replicaIdx int, resp *nativeResponse, err error) {
		if !read.record(replicaIdx, resp, err) {
			return
		}
		if _, won := read.claim(); !won {
			return
		}

		var results []*Result
		for idx, copyResp := range read.responses {
			if copyResp == nil {
				logDebugf("Replica %d of %s could not be read: %v", idx, redactUserData(desc.key), read.errs[idx])
				continue
			}

			res, buildErr := replicaResult(desc, copyResp)
			if buildErr != nil {
				complete(&nativeResponse{buildErr: buildErr}, nil)
				return
			}
			results = append(results, res)
		}

		if len(results) == 0 {
			complete(nil, read.failure())
			return
		}
		complete(&nativeResponse{cas: results[0].Cas, replicas: results}, nil)
	})
}
