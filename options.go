package gocbbridge

import (
	"math"
	"time"

	"github.com/couchbase/gocbcore/v10"
)

// Options is the parameter set accepted by every operation. Fields which do not apply
// to an operation kind must be left at their zero value; supplying them is rejected.
type Options struct {
	// Span is the parent span for the operation.
	Span gocbcore.RequestSpan

	// Expiry is the document expiry for mutations, touch and get_and_touch.
	Expiry time.Duration

	// Cas is the optimistic locking precondition. Zero means no precondition.
	Cas gocbcore.Cas

	// Timeout overrides the connection's default KV timeout.
	Timeout time.Duration

	Durability *Durability

	// LockTime is the lock duration for get_and_lock.
	LockTime time.Duration

	// Project restricts a get to the given document paths.
	Project []string

	// WithExpiry requests the document expiry along with a get.
	WithExpiry bool

	PreserveExpiry bool

	// Value is the document content for mutations, which is encoded with the
	// connection's transcoder, or the raw bytes for append and prepend.
	Value interface{}

	// Delta is the counter adjustment. Zero means 1.
	Delta uint64

	// Initial is the counter value to create the document with when it does not exist.
	// Nil means the operation fails on a missing document.
	Initial *uint64

	// Callback receives the result of a successful operation. Setting Callback or
	// Errback makes the call non-blocking.
	Callback func(*Result)

	// Errback receives the error of a failed operation.
	Errback func(error)
}

func (opts *Options) hasContinuation() bool {
	return opts != nil && (opts.Callback != nil || opts.Errback != nil)
}

// OptionsFromMap builds Options from the dynamic parameter mapping used by scripting
// front ends. Recognised keys are span, expiry, cas, timeout, durability, lock_time,
// project, with_expiry, preserve_expiry, callback, errback, value, delta and initial.
// Durations may be given as time.Duration or as a number of seconds.
func OptionsFromMap(params map[string]interface{}) (*Options, error) {
	opts := &Options{}
	for name, raw := range params {
		if raw == nil {
			continue
		}

		var err error
		switch name {
		case "span":
			span, ok := raw.(gocbcore.RequestSpan)
			if !ok {
				err = optionTypeError(name, "a RequestSpan", raw)
			}
			opts.Span = span
		case "expiry":
			opts.Expiry, err = durationOption(name, raw)
		case "cas":
			var cas uint64
			cas, err = uintOption(name, raw)
			opts.Cas = gocbcore.Cas(cas)
		case "timeout":
			opts.Timeout, err = durationOption(name, raw)
		case "durability":
			opts.Durability, err = durabilityOption(raw)
		case "lock_time":
			opts.LockTime, err = durationOption(name, raw)
		case "project":
			opts.Project, err = projectOption(raw)
		case "with_expiry":
			opts.WithExpiry, err = boolOption(name, raw)
		case "preserve_expiry":
			opts.PreserveExpiry, err = boolOption(name, raw)
		case "callback":
			switch cb := raw.(type) {
			case func(*Result):
				opts.Callback = cb
			default:
				err = optionTypeError(name, "a func(*Result)", raw)
			}
		case "errback":
			switch cb := raw.(type) {
			case func(error):
				opts.Errback = cb
			default:
				err = optionTypeError(name, "a func(error)", raw)
			}
		case "value":
			opts.Value = raw
		case "delta":
			opts.Delta, err = uintOption(name, raw)
		case "initial":
			var initial uint64
			initial, err = uintOption(name, raw)
			opts.Initial = &initial
		default:
			err = wrapErrorf(ErrInvalidArgument, "unrecognized option %q", name)
		}
		if err != nil {
			return nil, err
		}
	}

	return opts, nil
}

func optionTypeError(name, expected string, raw interface{}) error {
	return wrapErrorf(ErrInvalidArgument, "option %s must be %s, got %T", name, expected, raw)
}

func durationOption(name string, raw interface{}) (time.Duration, error) {
	switch v := raw.(type) {
	case time.Duration:
		if v < 0 {
			return 0, wrapErrorf(ErrInvalidArgument, "option %s cannot be negative", name)
		}
		return v, nil
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		secs, err := floatOption(name, v)
		if err != nil {
			return 0, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	return 0, optionTypeError(name, "a duration or a number of seconds", raw)
}

func floatOption(name string, raw interface{}) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	default:
		return 0, optionTypeError(name, "a number", raw)
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, wrapErrorf(ErrInvalidArgument, "option %s must be a non-negative number", name)
	}
	return f, nil
}

func uintOption(name string, raw interface{}) (uint64, error) {
	switch v := raw.(type) {
	case gocbcore.Cas:
		return uint64(v), nil
	case uint64:
		return v, nil
	case uint:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case int:
		return signedOption(name, int64(v))
	case int32:
		return signedOption(name, int64(v))
	case int64:
		return signedOption(name, v)
	case float64:
		if v < 0 || v != math.Trunc(v) || v > math.MaxUint64 {
			return 0, wrapErrorf(ErrInvalidArgument, "option %s must be a non-negative integer", name)
		}
		return uint64(v), nil
	}
	return 0, optionTypeError(name, "an integer", raw)
}

func signedOption(name string, v int64) (uint64, error) {
	if v < 0 {
		return 0, wrapErrorf(ErrInvalidArgument, "option %s must be a non-negative integer", name)
	}
	return uint64(v), nil
}

func boolOption(name string, raw interface{}) (bool, error) {
	b, ok := raw.(bool)
	if !ok {
		return false, optionTypeError(name, "a bool", raw)
	}
	return b, nil
}

func projectOption(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		paths := make([]string, len(v))
		for i, item := range v {
			path, ok := item.(string)
			if !ok {
				return nil, wrapErrorf(ErrInvalidArgument,
					"project must be a sequence of strings, item %d is %T", i, item)
			}
			paths[i] = path
		}
		return paths, nil
	}
	return nil, optionTypeError("project", "a sequence of strings", raw)
}

func durabilityOption(raw interface{}) (*Durability, error) {
	switch v := raw.(type) {
	case DurabilityLevel:
		return &Durability{Level: v}, nil
	case string:
		level, err := ParseDurabilityLevel(v)
		if err != nil {
			return nil, err
		}
		return &Durability{Level: level}, nil
	case Durability:
		return &v, nil
	case *Durability:
		return v, nil
	case map[string]interface{}:
		durability := &Durability{}
		for name, item := range v {
			switch name {
			case "level", "durability_level":
				switch level := item.(type) {
				case DurabilityLevel:
					durability.Level = level
				case string:
					parsed, err := ParseDurabilityLevel(level)
					if err != nil {
						return nil, err
					}
					durability.Level = parsed
				default:
					levelNum, err := uintOption(name, item)
					if err != nil {
						return nil, err
					}
					durability.Level = DurabilityLevel(levelNum)
				}
			case "persist_to":
				persistTo, err := uintOption(name, item)
				if err != nil {
					return nil, err
				}
				durability.PersistTo = uint(persistTo)
			case "replicate_to":
				replicateTo, err := uintOption(name, item)
				if err != nil {
					return nil, err
				}
				durability.ReplicateTo = uint(replicateTo)
			default:
				return nil, wrapErrorf(ErrInvalidArgument, "unrecognized durability option %q", name)
			}
		}
		return durability, nil
	}
	return nil, optionTypeError("durability", "a durability level or mapping", raw)
}
