package gocbbridge

import (
	"errors"
	"time"

	"github.com/couchbase/gocbcore/v10"
	"github.com/couchbase/gocbcore/v10/memd"
	"github.com/golang/snappy"
)

// nativeResponse is the kind independent view of one successful gocbcore completion.
// Only the fields the producing operation returns are populated.
type nativeResponse struct {
	cas           gocbcore.Cas
	mutationToken gocbcore.MutationToken
	value         []byte
	flags         uint32
	datatype      uint8
	deleted       bool
	isReplica     bool
	counter       uint64
	expiry        time.Time
	replicas      []*Result

	// buildErr records a failure to assemble the payload before it reached the adapter,
	// for instance a projection which could not be reassembled.
	buildErr error
}

// adaptResponse turns the native completion of one operation into exactly one Outcome.
func adaptResponse(desc *opDescriptor, resp *nativeResponse, err error) Outcome {
	if err != nil {
		if desc.kind == OpExists && isDocumentNotFound(err) {
			res := baseResult(desc, &nativeResponse{})
			res.Exists = false
			return successOutcome(res)
		}

		return failureOutcome(newOperationError(ErrorClassNative, desc, desc.kind, err))
	}

	if resp == nil {
		return failureOutcome(newOperationError(ErrorClassUnableToBuildResult, desc, desc.kind,
			wrapError(ErrUnableToBuildResult, "native layer completed without a response")))
	}

	res := baseResult(desc, resp)
	if err := extendResult(desc, res, resp); err != nil {
		if !errors.Is(err, ErrUnableToBuildResult) {
			err = wrapError(ErrUnableToBuildResult, err.Error())
		}
		return failureOutcome(newOperationError(ErrorClassUnableToBuildResult, desc, desc.kind, err))
	}

	return successOutcome(res)
}

func isDocumentNotFound(err error) bool {
	if errors.Is(err, gocbcore.ErrDocumentNotFound) {
		return true
	}

	var kvErr *gocbcore.KeyValueError
	return errors.As(err, &kvErr) && kvErr.StatusCode == memd.StatusKeyNotFound
}

// baseResult fills the fields common to every kind.
func baseResult(desc *opDescriptor, resp *nativeResponse) *Result {
	res := &Result{
		Kind:       desc.kind,
		Key:        desc.key,
		Cas:        resp.cas,
		transcoder: desc.transcoder,
	}

	if desc.kind.returnsMutationToken() && hasMutationToken(resp.mutationToken) {
		token := resp.mutationToken
		res.MutationToken = &token
	}

	return res
}

func hasMutationToken(token gocbcore.MutationToken) bool {
	return token.VbUUID != 0 || token.SeqNo != 0
}

// extendResult adds the fields unique to the operation kind.
func extendResult(desc *opDescriptor, res *Result, resp *nativeResponse) error {
	if resp.buildErr != nil {
		return resp.buildErr
	}

	switch desc.kind {
	case OpGet, OpGetAndLock:
		return applyContent(res, resp)
	case OpGetAnyReplica:
		res.IsReplica = resp.isReplica
		return applyContent(res, resp)
	case OpGetAndTouch:
		res.Expiry = expiryToTime(desc.expiry, time.Now())
		return applyContent(res, resp)
	case OpGetProjected:
		if desc.withExpiry {
			res.Expiry = resp.expiry
		}
		return applyContent(res, resp)
	case OpExists:
		res.Exists = !resp.deleted
		return nil
	case OpGetAllReplicas:
		res.Replicas = newReplicaSequence(resp.replicas)
		return nil
	case OpIncrement, OpDecrement:
		res.Counter = resp.counter
		return nil
	case OpTouch, OpUnlock, OpInsert, OpUpsert, OpReplace, OpRemove, OpAppend, OpPrepend:
		return nil
	}

	return wrapErrorf(ErrUnableToBuildResult, "no result extension for operation kind %s", desc.kind)
}

// replicaResult builds the result for one copy read by get_all_replicas.
func replicaResult(desc *opDescriptor, resp *nativeResponse) (*Result, error) {
	res := baseResult(desc, resp)
	res.IsReplica = resp.isReplica
	if err := applyContent(res, resp); err != nil {
		return nil, err
	}
	return res, nil
}

func applyContent(res *Result, resp *nativeResponse) error {
	value, err := decompressValue(resp.value, resp.datatype)
	if err != nil {
		return err
	}

	res.Value = value
	res.Flags = resp.flags
	return nil
}

// decompressValue inflates values the server sent snappy compressed. Automatic
// decompression is disabled on the agent so that failures surface here as result
// building errors.
func decompressValue(value []byte, datatype uint8) ([]byte, error) {
	if datatype&uint8(memd.DatatypeFlagCompressed) == 0 {
		return value, nil
	}

	decoded, err := snappy.Decode(nil, value)
	if err != nil {
		return nil, wrapErrorf(ErrUnableToBuildResult, "value could not be decompressed: %s", err)
	}
	return decoded, nil
}

// expiryToTime converts a server expiry, relative seconds or an absolute unix time, into
// a point in time. A zero expiry is the zero time.
func expiryToTime(expiry uint32, now time.Time) time.Time {
	if expiry == 0 {
		return time.Time{}
	}

	if time.Duration(expiry)*time.Second < relativeExpiryLimit {
		return now.Add(time.Duration(expiry) * time.Second)
	}

	return time.Unix(int64(expiry), 0)
}
