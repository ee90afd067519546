package qrouter

import (
	"strings"

	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
)

// Target is the connection class an operation is routed to.
type Target int

const (
	TargetReplica = Target(iota)
	TargetPrimary
)

func (t Target) String() string {
	switch t {
	case TargetPrimary:
		return "primary"
	case TargetReplica:
		return "replica"
	}
	return "invalid"
}

// ParseTarget parses a default read target. Empty means replica.
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(s) {
	case "", "replica":
		return TargetReplica, nil
	case "primary":
		return TargetPrimary, nil
	default:
		return TargetReplica, spqrerror.Newf(spqrerror.RR_CONFIGURATION, "unknown read target %q", s)
	}
}
