package gocbbridge

import (
	"fmt"
	"strings"

	"github.com/couchbase/gocbcore/v10/memd"
)

// DurabilityLevel specifies the level of synchronous replication to use.
type DurabilityLevel uint8

const (
	// DurabilityLevelNone specifies that no durability level should be applied.
	DurabilityLevelNone DurabilityLevel = iota

	// DurabilityLevelMajority specifies that a mutation must be replicated (held in memory) to a majority of nodes.
	DurabilityLevelMajority

	// DurabilityLevelMajorityAndPersistOnMaster specifies that a mutation must be replicated (held in memory) to a
	// majority of nodes and also persisted (written to disk) on the active node.
	DurabilityLevelMajorityAndPersistOnMaster

	// DurabilityLevelPersistToMajority specifies that a mutation must be persisted (written to disk) to a majority
	// of nodes.
	DurabilityLevelPersistToMajority
)

var durabilityLevelNames = map[DurabilityLevel]string{
	DurabilityLevelNone:                       "none",
	DurabilityLevelMajority:                   "majority",
	DurabilityLevelMajorityAndPersistOnMaster: "majority_and_persist_to_active",
	DurabilityLevelPersistToMajority:          "persist_to_majority",
}

func (level DurabilityLevel) String() string {
	if name, ok := durabilityLevelNames[level]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(level))
}

// ParseDurabilityLevel resolves a level name such as "majority".
func ParseDurabilityLevel(name string) (DurabilityLevel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for level, levelName := range durabilityLevelNames {
		if levelName == name {
			return level, nil
		}
	}
	return 0, wrapErrorf(ErrInvalidArgument, "unrecognized durability level %q", name)
}

func (level DurabilityLevel) toMemd() (memd.DurabilityLevel, error) {
	switch level {
	case DurabilityLevelNone:
		return memd.DurabilityLevel(0), nil
	case DurabilityLevelMajority:
		return memd.DurabilityLevelMajority, nil
	case DurabilityLevelMajorityAndPersistOnMaster:
		return memd.DurabilityLevelMajorityAndPersistOnMaster, nil
	case DurabilityLevelPersistToMajority:
		return memd.DurabilityLevelPersistToMajority, nil
	}
	return 0, wrapErrorf(ErrInvalidArgument, "invalid durability level %d", uint8(level))
}

func durabilityLevelFromMemd(level memd.DurabilityLevel) DurabilityLevel {
	switch level {
	case memd.DurabilityLevelMajority:
		return DurabilityLevelMajority
	case memd.DurabilityLevelMajorityAndPersistOnMaster:
		return DurabilityLevelMajorityAndPersistOnMaster
	case memd.DurabilityLevelPersistToMajority:
		return DurabilityLevelPersistToMajority
	}
	return DurabilityLevelNone
}

// Durability describes the durability requirement of a mutation. Either Level (server
// side synchronous durability) or PersistTo/ReplicateTo (client side observe based
// durability) may be used, never both.
type Durability struct {
	Level       DurabilityLevel
	PersistTo   uint
	ReplicateTo uint
}

// legacyDurability is the observe based requirement which is polled for after the
// mutation itself has completed.
type legacyDurability struct {
	persistTo   uint
	replicateTo uint
}

// resolvedDurability is the single durability requirement carried by a descriptor.
type resolvedDurability struct {
	level  memd.DurabilityLevel
	legacy *legacyDurability
}

func (d resolvedDurability) isSet() bool {
	return d.level > 0 || d.legacy != nil
}

func resolveDurability(kind OpKind, durability *Durability) (resolvedDurability, error) {
	if durability == nil {
		return resolvedDurability{}, nil
	}

	hasLegacy := durability.PersistTo > 0 || durability.ReplicateTo > 0
	hasLevel := durability.Level != DurabilityLevelNone
	if !hasLegacy && !hasLevel {
		return resolvedDurability{}, nil
	}

	if kind.Family() == FamilyRead {
		return resolvedDurability{}, wrapErrorf(ErrInvalidArgument, "durability is not supported for %s", kind)
	}

	if hasLegacy && hasLevel {
		return resolvedDurability{}, wrapError(ErrInvalidArgument,
			"durability level cannot be combined with persist_to/replicate_to")
	}

	if hasLegacy {
		return resolvedDurability{
			legacy: &legacyDurability{
				persistTo:   durability.PersistTo,
				replicateTo: durability.ReplicateTo,
			},
		}, nil
	}

	level, err := durability.Level.toMemd()
	if err != nil {
		return resolvedDurability{}, err
	}

	return resolvedDurability{level: level}, nil
}
