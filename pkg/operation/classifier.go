package operation

// Kind is the routing class of an operation.
type Kind int

const (
	Write = Kind(iota)
	Read
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	}
	return "invalid"
}

// DefaultReadOperations is the canonical read set. Raw queries are reads,
// raw executes are writes.
func DefaultReadOperations() []Operation {
	return []Operation{
		FindFirst,
		FindFirstOrThrow,
		FindMany,
		FindUnique,
		FindUniqueOrThrow,
		GroupBy,
		Aggregate,
		Count,
		FindRaw,
		AggregateRaw,
		QueryRaw,
		QueryRawUnsafe,
	}
}

// Classifier maps operations to their routing kind. Anything outside the
// read set is a write. A Classifier is immutable once built.
type Classifier struct {
	reads [operationCount]bool
}

// NewClassifier builds a classifier with the given read set. With no
// operations it falls back to DefaultReadOperations.
func NewClassifier(reads ...Operation) *Classifier {
	if len(reads) == 0 {
		reads = DefaultReadOperations()
	}
	c := &Classifier{}
	for _, op := range reads {
		if op > Unknown && op < operationCount {
			c.reads[op] = true
		}
	}
	return c
}

func (c *Classifier) Classify(op Operation) Kind {
	if op > Unknown && op < operationCount && c.reads[op] {
		return Read
	}
	return Write
}

func (c *Classifier) IsRead(op Operation) bool {
	return c.Classify(op) == Read
}

// ReadOperations returns the configured read set in declaration order.
func (c *Classifier) ReadOperations() []Operation {
	var ops []Operation
	for op := FindFirst; op < operationCount; op++ {
		if c.reads[op] {
			ops = append(ops, op)
		}
	}
	return ops
}
