package model

import "sort"

// Symbol is a function name with its address range, extracted from debug
// metadata. The range is half-open [Start, End); End equals Start when the
// metadata gave no usable size.
type Symbol struct {
	Name  string
	Start uint64
	End   uint64
}

// Contains reports whether addr falls inside the symbol's range.
func (s Symbol) Contains(addr uint64) bool {
	return addr >= s.Start && addr < s.End
}

// SymbolSet is the ordered function universe of one binary: ascending start
// address, one entry per name. Immutable once captured at wrap time.
type SymbolSet struct {
	Symbols []Symbol
	// Ignored lists duplicate names dropped at extraction; the first
	// occurrence by ascending address stays in Symbols.
	Ignored []string
}

// Len returns the number of functions in the set.
func (ss SymbolSet) Len() int {
	return len(ss.Symbols)
}

// Resolve maps an entry address to the symbol whose range contains it.
// Addresses outside every range resolve to nothing, never to a neighbour.
func (ss SymbolSet) Resolve(addr uint64) (Symbol, bool) {
	i := sort.Search(len(ss.Symbols), func(i int) bool {
		return ss.Symbols[i].Start > addr
	})
	if i == 0 {
		return Symbol{}, false
	}

	candidate := ss.Symbols[i-1]
	if !candidate.Contains(addr) {
		return Symbol{}, false
	}

	return candidate, true
}

// NameIndex returns a name → position lookup for event matching.
func (ss SymbolSet) NameIndex() map[string]int {
	index := make(map[string]int, len(ss.Symbols))
	for i, sym := range ss.Symbols {
		index[sym.Name] = i
	}

	return index
}
