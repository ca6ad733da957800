package gocbbridge

import (
	"sort"

	"github.com/samber/lo"
)

// MultiResult holds the outcome of every key of a multi operation.
type MultiResult struct {
	outcomes     map[string]*Outcome
	allSucceeded bool
}

// Outcome returns the outcome for key, and whether key was part of the operation.
func (mr *MultiResult) Outcome(key string) (Outcome, bool) {
	slot, ok := mr.outcomes[key]
	if !ok {
		return Outcome{}, false
	}
	return *slot, true
}

// Result returns the result for key, or nil if the key failed or was not requested.
func (mr *MultiResult) Result(key string) *Result {
	outcome, _ := mr.Outcome(key)
	return outcome.Result()
}

// Err returns the error for key, or nil if the key succeeded or was not requested.
func (mr *MultiResult) Err(key string) error {
	outcome, _ := mr.Outcome(key)
	return outcome.Err()
}

// Keys returns the requested keys in sorted order.
func (mr *MultiResult) Keys() []string {
	keys := lo.Keys(mr.outcomes)
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys in the operation.
func (mr *MultiResult) Len() int {
	return len(mr.outcomes)
}

// AllSucceeded reports whether every key succeeded.
func (mr *MultiResult) AllSucceeded() bool {
	return mr.allSucceeded
}

// FailedKeys returns the keys whose operation failed, in sorted order.
func (mr *MultiResult) FailedKeys() []string {
	return lo.Filter(mr.Keys(), func(key string, _ int) bool {
		return !mr.outcomes[key].Succeeded()
	})
}

type multiInput struct {
	kind OpKind
	opts *Options
	err  error
}

// runMulti issues one operation per key and waits for all of them. The slot of every key
// is allocated before the first issue, so completions never write to the map itself,
// and each slot is written by exactly one completion. Draining the per-key completions
// orders those writes before the result is returned.
func (c *Connection) runMulti(target Target, inputs map[string]multiInput) *MultiResult {
	target = c.resolveTarget(target)

	res := &MultiResult{
		outcomes: make(map[string]*Outcome, len(inputs)),
	}
	for key := range inputs {
		res.outcomes[key] = &Outcome{}
	}

	pending := make([]*completion[bool], 0, len(inputs))
	for key, input := range inputs {
		slot := res.outcomes[key]
		done := newBlockingCompletion[bool]()
		pending = append(pending, done)

		deliver := func(outcome Outcome) {
			*slot = outcome
			done.set(outcome.Succeeded())
		}

		if input.err != nil {
			c.dispatch(c.unresolvedDescriptor(target, key, input.kind), input.err, deliver)
			continue
		}

		opts := input.opts
		if opts.hasContinuation() {
			logDebugf("Ignoring continuations given for %s in a multi operation", redactUserData(key))
			stripped := *opts
			stripped.Callback = nil
			stripped.Errback = nil
			opts = &stripped
		}

		kind := effectiveKind(input.kind, opts)
		desc, descErr := newDescriptor(kind, target, key, opts, c.defaults)
		c.dispatch(desc, descErr, deliver)
	}

	reacquire := c.lock.relinquish()
	allSucceeded := true
	for _, done := range pending {
		if !done.get() {
			allSucceeded = false
		}
	}
	reacquire()

	res.allSucceeded = allSucceeded
	return res
}
