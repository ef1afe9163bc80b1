package model

// CallStatus classifies one function after aggregation.
type CallStatus string

const (
	// StatusCalled marks functions observed in at least one run log.
	StatusCalled CallStatus = "called"
	// StatusUncalled marks functions never observed in any run log.
	StatusUncalled CallStatus = "uncalled"
)

// FunctionCoverage pairs a function with its aggregated status.
type FunctionCoverage struct {
	Name   string
	Status CallStatus
}

// CoverageRecord is the derived coverage state of one binary. Functions keep
// the SymbolSet extraction order so regenerated reports are byte-identical.
// It is recomputed from the run logs on every request, never stored.
type CoverageRecord struct {
	Identity  BinaryIdentity
	Functions []FunctionCoverage
	// Unresolved counts distinct event names/addresses that matched no
	// symbol. They are never invented as functions.
	Unresolved int
	// Runs is the number of run logs folded into this record.
	Runs int
	// IgnoredDuplicates carries the extraction-time duplicate count.
	IgnoredDuplicates int
}

// Called returns the number of functions observed at least once.
func (c CoverageRecord) Called() int {
	called := 0

	for _, fn := range c.Functions {
		if fn.Status == StatusCalled {
			called++
		}
	}

	return called
}

// Total returns the number of functions in the record.
func (c CoverageRecord) Total() int {
	return len(c.Functions)
}

// Percent returns the called share in percent. An empty record is 0.
func (c CoverageRecord) Percent() float64 {
	if len(c.Functions) == 0 {
		return 0.0
	}

	return float64(c.Called()) / float64(len(c.Functions)) * 100
}
