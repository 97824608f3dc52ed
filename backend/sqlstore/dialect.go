package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported SQL databases.
type Dialect struct {
	// Name is used as the backend metrics tag.
	Name string

	// Placeholder returns the bind parameter for the n-th (1-based) argument.
	Placeholder func(n int) string

	// IsDuplicateKey reports whether err is a primary key violation.
	IsDuplicateKey func(err error) bool
}

func QuestionPlaceholder(int) string {
	return "?"
}

func DollarPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// rebind replaces each ? in query with the dialect's placeholder.
func (d Dialect) rebind(query string) string {
	if d.Placeholder == nil {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString(d.Placeholder(n))
			continue
		}

		sb.WriteRune(r)
	}

	return sb.String()
}
