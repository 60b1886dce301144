package expr

import "bpedit/emu/breakpoints"

// Parser parses breakpoint and memcheck conditions.
type Parser struct{}

func (Parser) ParseCondition(text string) (breakpoints.Condition, error) {
	e, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return e, nil
}
