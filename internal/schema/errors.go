package schema

import "fmt"

// ParseError reports a schema-shape violation with the XML line it
// was found on, per §4.6 ("typed schema error with line context").
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("schema: line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("schema: %s", e.Message)
}

// ParseErrors accumulates every violation found during one parse, so
// operators see the full list rather than stopping at the first.
type ParseErrors []*ParseError

func (es ParseErrors) Error() string {
	if len(es) == 1 {
		return es[0].Error()
	}
	msg := fmt.Sprintf("schema: %d validation errors:", len(es))
	for _, e := range es {
		msg += "\n  " + e.Error()
	}
	return msg
}

func (es ParseErrors) asError() error {
	if len(es) == 0 {
		return nil
	}
	return es
}
