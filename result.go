package gocbbridge

import (
	"sync/atomic"
	"time"

	"github.com/couchbase/gocbcore/v10"
)

// Result is the success payload of an operation. Which fields are populated depends on
// the operation kind that produced it.
type Result struct {
	Kind OpKind
	Key  string
	Cas  gocbcore.Cas

	// MutationToken is set for mutation, counter and binary operations when the
	// server returned one.
	MutationToken *gocbcore.MutationToken

	// Flags and Value are set by reads. Value has already been decompressed.
	Flags uint32
	Value []byte

	// Expiry is set by get_and_touch and by projected gets made with WithExpiry. A zero
	// Expiry on such a result means the document has no expiry.
	Expiry time.Time

	// Exists is set by exists.
	Exists bool

	// IsReplica is set by replica reads when the value came from a replica copy.
	IsReplica bool

	// Counter is the new counter value returned by increment and decrement.
	Counter uint64

	// Replicas holds the per-copy results of get_all_replicas.
	Replicas *ReplicaSequence

	transcoder Transcoder
}

// Content decodes the value of a read result into valuePtr using the transcoder the
// operation was issued with.
func (r *Result) Content(valuePtr interface{}) error {
	transcoder := r.transcoder
	if transcoder == nil {
		transcoder = NewLegacyTranscoder()
	}
	return transcoder.Decode(r.Value, r.Flags, valuePtr)
}

// ReplicaSequence is the materialised set of results returned by get_all_replicas. It
// can be consumed once: Next returns each result in turn and then nil.
type ReplicaSequence struct {
	results []*Result
	next    uint32
}

func newReplicaSequence(results []*Result) *ReplicaSequence {
	return &ReplicaSequence{
		results: results,
	}
}

// Next returns the next replica result, or nil once the sequence is exhausted.
func (s *ReplicaSequence) Next() *Result {
	idx := atomic.AddUint32(&s.next, 1) - 1
	if int(idx) >= len(s.results) {
		// Hold the cursor at the end so repeated calls keep returning nil.
		atomic.StoreUint32(&s.next, uint32(len(s.results)))
		return nil
	}
	return s.results[idx]
}

// Len returns the total number of results in the sequence, consumed or not.
func (s *ReplicaSequence) Len() int {
	return len(s.results)
}
