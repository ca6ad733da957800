package gocbbridge

import (
	"fmt"
)

// OpKind identifies the key-value operation a call performs.
type OpKind int

// The set of operation kinds understood by the bridge. OpKind values outside of this set
// are rejected with ErrInvalidArgument.
const (
	OpGet OpKind = iota + 1
	OpExists
	OpTouch
	OpUnlock
	OpGetAndLock
	OpGetAndTouch
	OpGetProjected
	OpGetAnyReplica
	OpGetAllReplicas
	OpInsert
	OpUpsert
	OpReplace
	OpRemove
	OpIncrement
	OpDecrement
	OpAppend
	OpPrepend

	opKindEnd
)

// OpFamily groups operation kinds which share option handling and result shape.
type OpFamily int

// The operation families.
const (
	FamilyRead OpFamily = iota + 1
	FamilyMutation
	FamilyCounter
	FamilyBinary
)

var opKindNames = map[OpKind]string{
	OpGet:            "get",
	OpExists:         "exists",
	OpTouch:          "touch",
	OpUnlock:         "unlock",
	OpGetAndLock:     "get_and_lock",
	OpGetAndTouch:    "get_and_touch",
	OpGetProjected:   "get_projected",
	OpGetAnyReplica:  "get_any_replica",
	OpGetAllReplicas: "get_all_replicas",
	OpInsert:         "insert",
	OpUpsert:         "upsert",
	OpReplace:        "replace",
	OpRemove:         "remove",
	OpIncrement:      "increment",
	OpDecrement:      "decrement",
	OpAppend:         "append",
	OpPrepend:        "prepend",
}

// AllOpKinds returns every valid operation kind.
func AllOpKinds() []OpKind {
	kinds := make([]OpKind, 0, int(opKindEnd)-1)
	for kind := OpGet; kind < opKindEnd; kind++ {
		kinds = append(kinds, kind)
	}
	return kinds
}

// ParseOpKind resolves an operation tag such as "get_and_lock" to its OpKind.
func ParseOpKind(tag string) (OpKind, error) {
	for kind, name := range opKindNames {
		if name == tag {
			return kind, nil
		}
	}
	return 0, wrapErrorf(ErrInvalidArgument, "unrecognized operation kind %q", tag)
}

// Valid reports whether the kind is one the bridge can dispatch.
func (k OpKind) Valid() bool {
	return k >= OpGet && k < opKindEnd
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Family returns the family the kind belongs to, or 0 for an invalid kind.
func (k OpKind) Family() OpFamily {
	switch k {
	case OpGet, OpExists, OpTouch, OpUnlock, OpGetAndLock, OpGetAndTouch, OpGetProjected,
		OpGetAnyReplica, OpGetAllReplicas:
		return FamilyRead
	case OpInsert, OpUpsert, OpReplace, OpRemove:
		return FamilyMutation
	case OpIncrement, OpDecrement:
		return FamilyCounter
	case OpAppend, OpPrepend:
		return FamilyBinary
	}
	return 0
}

// Category is the static description attached to failures of this kind.
func (k OpKind) Category() string {
	switch k.Family() {
	case FamilyRead:
		return "KV read operation error"
	case FamilyMutation:
		return "KV mutation operation error"
	case FamilyCounter, FamilyBinary:
		return "Binary operation error"
	}
	return "KV operation error"
}

// returnsMutationToken reports whether successful results of this kind carry a token.
func (k OpKind) returnsMutationToken() bool {
	switch k.Family() {
	case FamilyMutation, FamilyCounter, FamilyBinary:
		return true
	}
	return false
}
