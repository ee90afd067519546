package operation

import (
	"strings"

	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
)

// Operation is the closed set of client operations the router knows how
// to classify.
type Operation int

const (
	Unknown = Operation(iota)

	FindFirst
	FindFirstOrThrow
	FindMany
	FindUnique
	FindUniqueOrThrow
	GroupBy
	Aggregate
	Count
	FindRaw
	AggregateRaw
	QueryRaw
	QueryRawUnsafe

	Create
	CreateMany
	CreateManyAndReturn
	Update
	UpdateMany
	UpdateManyAndReturn
	Upsert
	Delete
	DeleteMany
	ExecuteRaw
	ExecuteRawUnsafe
	RunCommandRaw

	operationCount
)

var names = [operationCount]string{
	Unknown:             "unknown",
	FindFirst:           "findFirst",
	FindFirstOrThrow:    "findFirstOrThrow",
	FindMany:            "findMany",
	FindUnique:          "findUnique",
	FindUniqueOrThrow:   "findUniqueOrThrow",
	GroupBy:             "groupBy",
	Aggregate:           "aggregate",
	Count:               "count",
	FindRaw:             "findRaw",
	AggregateRaw:        "aggregateRaw",
	QueryRaw:            "$queryRaw",
	QueryRawUnsafe:      "$queryRawUnsafe",
	Create:              "create",
	CreateMany:          "createMany",
	CreateManyAndReturn: "createManyAndReturn",
	Update:              "update",
	UpdateMany:          "updateMany",
	UpdateManyAndReturn: "updateManyAndReturn",
	Upsert:              "upsert",
	Delete:              "delete",
	DeleteMany:          "deleteMany",
	ExecuteRaw:          "$executeRaw",
	ExecuteRawUnsafe:    "$executeRawUnsafe",
	RunCommandRaw:       "$runCommandRaw",
}

var byName = func() map[string]Operation {
	m := make(map[string]Operation, operationCount)
	for op := FindFirst; op < operationCount; op++ {
		m[strings.TrimPrefix(names[op], "$")] = op
	}
	return m
}()

func (op Operation) String() string {
	if op < 0 || op >= operationCount {
		return names[Unknown]
	}
	return names[op]
}

// Parse resolves an operation by name. The leading '$' of raw operations
// is optional.
func Parse(name string) (Operation, error) {
	if op, ok := byName[strings.TrimPrefix(name, "$")]; ok {
		return op, nil
	}
	return Unknown, spqrerror.Newf(spqrerror.RR_CONFIGURATION, "unknown operation %q", name)
}

// ParseList resolves every name, failing on the first unknown one.
func ParseList(names []string) ([]Operation, error) {
	ops := make([]Operation, 0, len(names))
	for _, n := range names {
		op, err := Parse(n)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// All lists every known operation in declaration order.
func All() []Operation {
	ops := make([]Operation, 0, operationCount-1)
	for op := FindFirst; op < operationCount; op++ {
		ops = append(ops, op)
	}
	return ops
}

// IsRawQuery reports whether op is a model-less raw SQL query whose rows
// come back as plain column maps.
func (op Operation) IsRawQuery() bool {
	return op == QueryRaw || op == QueryRawUnsafe
}

// ReturnsRows reports whether executing op yields a row set rather than
// an affected-rows count.
func (op Operation) ReturnsRows() bool {
	switch op {
	case CreateMany, UpdateMany, DeleteMany, ExecuteRaw, ExecuteRawUnsafe, RunCommandRaw, Unknown:
		return false
	default:
		return op > Unknown && op < operationCount
	}
}
