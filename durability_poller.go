package gocbbridge

import (
	"sync"
	"time"

	"github.com/couchbase/gocbcore/v10"
)

const defaultDurabilityPollInterval = 100 * time.Millisecond

// legacyDurableRequest is a mutation which is only reported complete once the observed
// persistence and replication counts satisfy its requirement. It is kept apart from the
// level based request, which the server enforces on its own.
type legacyDurableRequest struct {
	desc        *opDescriptor
	requirement legacyDurability
	numReplicas int
	deadline    time.Time
	trace       *opTracer
}

// durabilityPoller observes a mutation's vbucket on the active and its replicas until
// the requirement of a legacyDurableRequest is met or its deadline passes.
type durabilityPoller struct {
	provider kvProvider
	interval time.Duration
	timers   sync.Pool
}

func newDurabilityPoller(provider kvProvider, interval time.Duration) *durabilityPoller {
	if interval <= 0 {
		interval = defaultDurabilityPollInterval
	}
	return &durabilityPoller{
		provider: provider,
		interval: interval,
	}
}

// prepare builds the durable request, failing when the bucket has too few replicas for
// the requirement to ever be met.
func (p *durabilityPoller) prepare(desc *opDescriptor, deadline time.Time, trace *opTracer) (*legacyDurableRequest, error) {
	numReplicas, err := p.provider.NumReplicas()
	if err != nil {
		return nil, err
	}

	requirement := *desc.durability.legacy
	if requirement.replicateTo > uint(numReplicas) {
		return nil, wrapErrorf(ErrDurabilityImpossible, "replicate_to %d exceeds the %d configured replicas",
			requirement.replicateTo, numReplicas)
	}
	if requirement.persistTo > uint(numReplicas)+1 {
		return nil, wrapErrorf(ErrDurabilityImpossible, "persist_to %d exceeds the %d available nodes",
			requirement.persistTo, numReplicas+1)
	}

	return &legacyDurableRequest{
		desc:        desc,
		requirement: requirement,
		numReplicas: numReplicas,
		deadline:    deadline,
		trace:       trace,
	}, nil
}

// chain returns a completion handler which starts polling once the mutation itself has
// succeeded, and hands the mutation response to complete once the requirement is met.
func (p *durabilityPoller) chain(req *legacyDurableRequest, complete func(*nativeResponse, error)) func(*nativeResponse, error) {
	return func(resp *nativeResponse, err error) {
		if err != nil {
			complete(nil, err)
			return
		}

		if resp.mutationToken.VbUUID == 0 {
			resp.buildErr = wrapError(ErrUnableToBuildResult, "mutation token is required to observe durability")
			complete(resp, nil)
			return
		}

		done := newCallbackCompletion(func(pollErr error) {
			if pollErr != nil {
				complete(nil, pollErr)
				return
			}
			complete(resp, nil)
		})

		go p.poll(req, resp.mutationToken, done)
	}
}

func (p *durabilityPoller) poll(req *legacyDurableRequest, token gocbcore.MutationToken, done *completion[error]) {
	for round := 1; ; round++ {
		req.trace.AddEvent("observe_round")
		persisted, replicated := p.observeRound(req, token)

		logSchedf("Durability round %d for %s: persisted %d, replicated %d", round,
			redactUserData(req.desc.key), persisted, replicated)

		if persisted >= req.requirement.persistTo && replicated >= req.requirement.replicateTo {
			done.set(nil)
			return
		}

		remaining := time.Until(req.deadline)
		if remaining <= 0 {
			done.set(wrapErrorf(ErrDurabilityTimeout, "persisted to %d and replicated to %d after %d rounds",
				persisted, replicated, round))
			return
		}

		wait := p.interval
		if wait > remaining {
			wait = remaining
		}
		p.sleep(wait)
	}
}

// observeRound observes the vbucket on every node holding it and counts the copies
// which have the mutation persisted and, for replicas, in memory.
func (p *durabilityPoller) observeRound(req *legacyDurableRequest, token gocbcore.MutationToken) (persisted, replicated uint) {
	type observation struct {
		replicaIdx int
		res        *gocbcore.ObserveVbResult
		err        error
	}

	numNodes := req.numReplicas + 1
	observations := make(chan observation, numNodes)
	for replicaIdx := 0; replicaIdx < numNodes; replicaIdx++ {
		replicaIdx := replicaIdx
		_, err := p.provider.ObserveVb(gocbcore.ObserveVbOptions{
			VbID:         token.VbID,
			VbUUID:       token.VbUUID,
			ReplicaIdx:   replicaIdx,
			Deadline:     req.deadline,
			TraceContext: req.trace.RootContext(),
		}, func(res *gocbcore.ObserveVbResult, err error) {
			observations <- observation{replicaIdx: replicaIdx, res: res, err: err}
		})
		if err != nil {
			observations <- observation{replicaIdx: replicaIdx, err: err}
		}
	}

	for i := 0; i < numNodes; i++ {
		obs := <-observations
		if obs.err != nil {
			logDebugf("Observe of vbucket %d on replica %d failed: %v", token.VbID, obs.replicaIdx, obs.err)
			continue
		}
		if obs.res.DidFailover || obs.res.VbUUID != token.VbUUID {
			continue
		}

		if obs.res.PersistSeqNo >= token.SeqNo {
			persisted++
		}
		if obs.replicaIdx > 0 && obs.res.CurrentSeqNo >= token.SeqNo {
			replicated++
		}
	}

	return persisted, replicated
}

func (p *durabilityPoller) sleep(d time.Duration) {
	tmr, ok := p.timers.Get().(*time.Timer)
	if !ok {
		tmr = time.NewTimer(d)
	} else {
		tmr.Reset(d)
	}
	<-tmr.C
	p.timers.Put(tmr)
}
