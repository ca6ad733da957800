package gocbbridge

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/couchbase/gocbcore/v10"
	"github.com/google/uuid"
)

const (
	// noInitialCounterValue tells gocbcore not to create a missing counter document.
	noInitialCounterValue = uint64(0xFFFFFFFFFFFFFFFF)

	// relativeExpiryLimit is the largest expiry the server treats as relative to now.
	relativeExpiryLimit = 30 * 24 * time.Hour
)

// Target addresses the collection an operation runs against. Empty scope and collection
// names select the default collection.
type Target struct {
	Bucket     string
	Scope      string
	Collection string
}

// opDescriptor is the fully resolved and validated parameter set for one operation,
// independent of how the caller expressed it.
type opDescriptor struct {
	opID   string
	kind   OpKind
	target Target
	key    string

	value []byte
	flags uint32

	timeout        time.Duration
	expiry         uint32
	cas            gocbcore.Cas
	lockTime       uint32
	project        []string
	withExpiry     bool
	preserveExpiry bool
	delta          uint64
	initial        uint64
	durability     resolvedDurability
	parentSpan     gocbcore.RequestSpan
	transcoder     Transcoder
}

func (desc *opDescriptor) deadline() time.Time {
	return time.Now().Add(desc.timeout)
}

func (desc *opDescriptor) traceParent() gocbcore.RequestSpanContext {
	if desc.parentSpan == nil {
		return nil
	}
	return desc.parentSpan.Context()
}

// effectiveKind maps a plain get which asks for projections or the expiry onto the
// projected get, which is the only read able to return those.
func effectiveKind(kind OpKind, opts *Options) OpKind {
	if kind == OpGet && opts != nil && (len(opts.Project) > 0 || opts.WithExpiry) {
		return OpGetProjected
	}
	return kind
}

// newDescriptor resolves and validates the options for one operation. Errors returned
// here always wrap ErrInvalidArgument.
func newDescriptor(kind OpKind, target Target, key string, opts *Options, defaults descriptorDefaults) (*opDescriptor, error) {
	if opts == nil {
		opts = &Options{}
	}

	desc := &opDescriptor{
		opID:       uuid.New().String(),
		kind:       kind,
		target:     target,
		key:        key,
		timeout:    defaults.timeout,
		parentSpan: opts.Span,
		transcoder: defaults.transcoder,
		initial:    noInitialCounterValue,
	}

	if !kind.Valid() {
		return desc, wrapErrorf(ErrInvalidArgument, "unrecognized operation kind %d", int(kind))
	}
	if key == "" {
		return desc, wrapError(ErrInvalidArgument, "key cannot be empty")
	}
	if target.Bucket == "" {
		return desc, wrapError(ErrInvalidArgument, "bucket cannot be empty")
	}
	if (target.Scope == "") != (target.Collection == "") {
		return desc, wrapError(ErrInvalidArgument, "scope and collection must be given together")
	}

	if opts.Timeout > 0 {
		desc.timeout = opts.Timeout
	}

	durability, err := resolveDurability(kind, opts.Durability)
	if err != nil {
		return desc, err
	}
	desc.durability = durability

	if err := desc.applyExpiry(opts); err != nil {
		return desc, err
	}
	if err := desc.applyCas(opts); err != nil {
		return desc, err
	}
	if err := desc.applyValue(opts); err != nil {
		return desc, err
	}
	if err := desc.applyKindOptions(opts); err != nil {
		return desc, err
	}

	return desc, nil
}

type descriptorDefaults struct {
	timeout    time.Duration
	transcoder Transcoder
}

func (desc *opDescriptor) applyExpiry(opts *Options) error {
	switch desc.kind {
	case OpInsert, OpUpsert, OpReplace, OpTouch, OpGetAndTouch, OpIncrement, OpDecrement:
	default:
		if opts.Expiry != 0 {
			return wrapErrorf(ErrInvalidArgument, "expiry is not supported for %s", desc.kind)
		}
		return nil
	}

	if opts.Expiry < 0 {
		return wrapError(ErrInvalidArgument, "expiry cannot be negative")
	}

	expiry, err := durationToExpiry(opts.Expiry)
	if err != nil {
		return err
	}
	desc.expiry = expiry
	return nil
}

func (desc *opDescriptor) applyCas(opts *Options) error {
	switch desc.kind {
	case OpReplace, OpRemove, OpUnlock, OpAppend, OpPrepend:
		desc.cas = opts.Cas
		if desc.kind == OpUnlock && desc.cas == 0 {
			return wrapError(ErrInvalidArgument, "unlock requires the cas returned by get_and_lock")
		}
		return nil
	}

	if opts.Cas != 0 {
		return wrapErrorf(ErrInvalidArgument, "cas is not supported for %s", desc.kind)
	}
	return nil
}

func (desc *opDescriptor) applyValue(opts *Options) error {
	switch desc.kind.Family() {
	case FamilyMutation:
		if desc.kind == OpRemove {
			break
		}
		if opts.Value == nil {
			return wrapErrorf(ErrInvalidArgument, "a value is required for %s", desc.kind)
		}
		value, flags, err := desc.transcoder.Encode(opts.Value)
		if err != nil {
			if errors.Is(err, ErrInvalidArgument) {
				return err
			}
			return wrapErrorf(ErrInvalidArgument, "value could not be encoded: %s", err)
		}
		desc.value = value
		desc.flags = flags
		return nil
	case FamilyBinary:
		value, ok := opts.Value.([]byte)
		if !ok {
			return wrapErrorf(ErrInvalidArgument, "value for %s must be a []byte, got %T", desc.kind, opts.Value)
		}
		desc.value = value
		return nil
	}

	if opts.Value != nil {
		return wrapErrorf(ErrInvalidArgument, "a value is not supported for %s", desc.kind)
	}
	return nil
}

func (desc *opDescriptor) applyKindOptions(opts *Options) error {
	if opts.LockTime != 0 && desc.kind != OpGetAndLock {
		return wrapErrorf(ErrInvalidArgument, "lock_time is not supported for %s", desc.kind)
	}
	if (len(opts.Project) > 0 || opts.WithExpiry) && desc.kind != OpGetProjected {
		return wrapErrorf(ErrInvalidArgument, "project and with_expiry are not supported for %s", desc.kind)
	}
	if opts.PreserveExpiry && desc.kind != OpUpsert && desc.kind != OpReplace {
		return wrapErrorf(ErrInvalidArgument, "preserve_expiry is not supported for %s", desc.kind)
	}
	if (opts.Delta != 0 || opts.Initial != nil) && desc.kind.Family() != FamilyCounter {
		return wrapErrorf(ErrInvalidArgument, "delta and initial are not supported for %s", desc.kind)
	}

	switch desc.kind {
	case OpGetAndLock:
		if opts.LockTime <= 0 {
			return wrapError(ErrInvalidArgument, "get_and_lock requires a positive lock_time")
		}
		lockSecs := opts.LockTime / time.Second
		if lockSecs == 0 {
			lockSecs = 1
		}
		desc.lockTime = uint32(lockSecs)
	case OpGetProjected:
		for i, path := range opts.Project {
			if strings.TrimSpace(path) == "" {
				return wrapErrorf(ErrInvalidArgument, "projection %d is empty", i)
			}
		}
		desc.project = opts.Project
		desc.withExpiry = opts.WithExpiry
	case OpUpsert, OpReplace:
		if opts.PreserveExpiry && opts.Expiry != 0 {
			return wrapError(ErrInvalidArgument, "preserve_expiry cannot be combined with expiry")
		}
		desc.preserveExpiry = opts.PreserveExpiry
	case OpIncrement, OpDecrement:
		desc.delta = opts.Delta
		if desc.delta == 0 {
			desc.delta = 1
		}
		if opts.Initial != nil {
			if *opts.Initial == noInitialCounterValue {
				return wrapError(ErrInvalidArgument, "initial value is out of range")
			}
			desc.initial = *opts.Initial
		}
	}

	return nil
}

// durationToExpiry converts a relative expiry into the server representation, which is
// relative seconds up to 30 days and an absolute unix timestamp beyond that.
func durationToExpiry(dura time.Duration) (uint32, error) {
	if dura == 0 {
		return 0, nil
	}

	if dura < time.Second {
		// Any non-zero expiry under a second rounds up so it is not read as "no expiry".
		return 1, nil
	}

	if dura < relativeExpiryLimit {
		return uint32(dura / time.Second), nil
	}

	expiry := time.Now().Add(dura).Unix()
	if expiry > math.MaxUint32 {
		return 0, wrapError(ErrInvalidArgument, "expiry exceeds the maximum supported value")
	}
	return uint32(expiry), nil
}
