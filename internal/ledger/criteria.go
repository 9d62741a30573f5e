package ledger

import "strings"

// Criterion narrows a lookup to rows whose column holds one of a set of values
type Criterion struct {
	Column string
	Values []string
}

// Eq matches rows whose column equals value
func Eq(column, value string) Criterion {
	return Criterion{Column: column, Values: []string{value}}
}

// In matches rows whose column equals any of values
func In(column string, values ...string) Criterion {
	return Criterion{Column: column, Values: values}
}

func (c Criterion) matches(cell string) bool {
	cell = strings.TrimSpace(cell)
	for _, v := range c.Values {
		if cell == v {
			return true
		}
	}
	return false
}
