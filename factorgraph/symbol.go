// Package factorgraph accumulates probabilistic constraints between pose and
// landmark variables and solves for the joint maximum-likelihood estimate.
package factorgraph

import "fmt"

// Symbol identifies a variable: a category character and a running index.
// Symbols double as frame names in the spatial graph.
type Symbol struct {
	Category byte
	Index    uint64
}

// NewSymbol returns the symbol for the given category and index.
func NewSymbol(category byte, index uint64) Symbol {
	return Symbol{Category: category, Index: index}
}

// String renders the symbol the way it names frames, e.g. "x12".
func (s Symbol) String() string {
	return fmt.Sprintf("%c%d", s.Category, s.Index)
}

// Less orders symbols by category, then index.
func (s Symbol) Less(o Symbol) bool {
	if s.Category != o.Category {
		return s.Category < o.Category
	}
	return s.Index < o.Index
}
