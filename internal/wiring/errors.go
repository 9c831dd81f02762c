package wiring

import (
	"fmt"
	"strings"
)

// BuildErrors is every problem found by a Build with error collection on.
// errors.Is and errors.As look into each of them.
type BuildErrors []error

func (e BuildErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d wiring errors:", len(e))
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(strings.ReplaceAll(err.Error(), "\n", "\n    "))
	}
	return b.String()
}

func (e BuildErrors) Unwrap() []error { return e }
