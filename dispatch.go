package gocbbridge

import (
	"github.com/google/uuid"
)

// Do runs one operation. Without a Callback or Errback in opts it blocks until the
// operation completes and returns its result or its *OperationError. With either
// continuation set it returns (nil, nil) once the operation is submitted, and the
// outcome is delivered to the continuation instead.
//
// Every call delivers exactly one outcome, including calls rejected for invalid
// arguments, which are never submitted.
func (c *Connection) Do(target Target, kind OpKind, key string, opts *Options) (*Result, error) {
	target = c.resolveTarget(target)
	kind = effectiveKind(kind, opts)
	desc, descErr := newDescriptor(kind, target, key, opts, c.defaults)
	return c.execute(desc, descErr, opts)
}

// DoTag is Do with the operation named by its tag, such as "get_and_lock".
func (c *Connection) DoTag(target Target, tag string, key string, opts *Options) (*Result, error) {
	kind, err := ParseOpKind(tag)
	if err != nil {
		return c.execute(c.unresolvedDescriptor(target, key, kind), err, opts)
	}
	return c.Do(target, kind, key, opts)
}

// DoMap is DoTag with the options given as the dynamic parameter mapping accepted by
// OptionsFromMap.
func (c *Connection) DoMap(target Target, tag string, key string, params map[string]interface{}) (*Result, error) {
	opts, err := OptionsFromMap(params)
	if err != nil {
		kind, _ := ParseOpKind(tag)
		return c.execute(c.unresolvedDescriptor(target, key, kind), err, continuationsFromMap(params))
	}
	return c.DoTag(target, tag, key, opts)
}

// DoMulti runs one operation kind against many keys and waits for all of them. It never
// returns an error: failures, including invalid options, are reported per key.
func (c *Connection) DoMulti(target Target, kind OpKind, entries map[string]*Options) *MultiResult {
	inputs := make(map[string]multiInput, len(entries))
	for key, opts := range entries {
		inputs[key] = multiInput{kind: kind, opts: opts}
	}
	return c.runMulti(target, inputs)
}

// DoMultiMap is DoMulti with the operation named by its tag and each key's options given
// as a dynamic parameter mapping.
func (c *Connection) DoMultiMap(target Target, tag string, entries map[string]map[string]interface{}) *MultiResult {
	kind, kindErr := ParseOpKind(tag)

	inputs := make(map[string]multiInput, len(entries))
	for key, params := range entries {
		input := multiInput{kind: kind, err: kindErr}
		if input.err == nil {
			input.opts, input.err = OptionsFromMap(params)
		}
		inputs[key] = input
	}
	return c.runMulti(target, inputs)
}

func (c *Connection) resolveTarget(target Target) Target {
	if target.Bucket == "" {
		target.Bucket = c.config.DefaultBucket
	}
	return target
}

// unresolvedDescriptor describes an operation rejected before its options could be
// resolved, so that its failure still carries the key and target.
func (c *Connection) unresolvedDescriptor(target Target, key string, kind OpKind) *opDescriptor {
	return &opDescriptor{
		opID:       uuid.New().String(),
		kind:       kind,
		target:     c.resolveTarget(target),
		key:        key,
		transcoder: c.defaults.transcoder,
	}
}

// execute delivers one operation in the mode its options select.
func (c *Connection) execute(desc *opDescriptor, descErr error, opts *Options) (*Result, error) {
	if opts.hasContinuation() {
		done := newCallbackCompletion(continuationDelivery(c.lock, desc, opts))
		c.dispatch(desc, descErr, func(outcome Outcome) {
			done.set(outcome)
		})
		return nil, nil
	}

	done := newBlockingCompletion[Outcome]()
	c.dispatch(desc, descErr, func(outcome Outcome) {
		done.set(outcome)
	})

	reacquire := c.lock.relinquish()
	outcome := done.get()
	reacquire()

	return outcome.Unpack()
}

// dispatch routes one operation to its bucket's bridge, or delivers its failure directly
// when it cannot be submitted at all.
func (c *Connection) dispatch(desc *opDescriptor, descErr error, deliver func(Outcome)) {
	if descErr != nil {
		outcome := failureOutcome(invalidArgumentError(desc, desc.kind, descErr))
		c.tracing.meter.RecordOutcome(desc.kind.String(), outcomeLabel(outcome))
		deliverLocal(c.lock, outcome, deliver)
		return
	}

	bridge, err := c.bridgeFor(desc.target.Bucket)
	if err != nil {
		outcome := failureOutcome(newOperationError(ErrorClassNative, desc, desc.kind, err))
		c.tracing.meter.RecordOutcome(desc.kind.String(), outcomeLabel(outcome))
		deliverLocal(c.lock, outcome, deliver)
		return
	}

	bridge.run(desc, deliver)
}

// continuationsFromMap recovers the continuations from a parameter mapping which
// failed to parse, so that the failure is delivered the way the caller asked for.
func continuationsFromMap(params map[string]interface{}) *Options {
	opts := &Options{}
	if cb, ok := params["callback"].(func(*Result)); ok {
		opts.Callback = cb
	}
	if cb, ok := params["errback"].(func(error)); ok {
		opts.Errback = cb
	}
	return opts
}
