package resume

import (
	"emperror.dev/errors"
)

// Policy decides if a stored record of length stored can be reused for a run that asked for requested shards
type Policy func(stored, requested int) bool

// ExactMatch only reuses records with the same shard count
func ExactMatch(stored, requested int) bool {
	return stored == requested
}

// AtLeastHalf reuses records with at least half the requested shard count, the recommended count
// can drift between runs and resuming the old layout beats reidentifying every shard
func AtLeastHalf(stored, requested int) bool {
	return requested/2 <= stored
}

func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "exact", "":
		return ExactMatch, nil
	case "half":
		return AtLeastHalf, nil
	}

	return nil, errors.Errorf("unknown resume policy %q, expected exact or half", name)
}
