package sim

import (
	"fmt"
	"strings"
)

// elemSpec is one parsed element of a description: a factory name plus
// property assignments in source order.
type elemSpec struct {
	factory string
	props   []propAssign
}

type propAssign struct {
	key   string
	value string
}

// parseDescription splits a parse-launch style description into element
// specs. Elements are separated by "!", each one a factory name followed
// by key=value assignments. Values may be single- or double-quoted to
// carry spaces; quotes are stripped.
func parseDescription(desc string) ([]elemSpec, error) {
	tokens, err := tokenize(desc)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty description")
	}

	var specs []elemSpec
	var cur *elemSpec
	for _, tok := range tokens {
		if tok == "!" {
			if cur == nil {
				return nil, fmt.Errorf("dangling link separator")
			}
			specs = append(specs, *cur)
			cur = nil
			continue
		}
		if cur == nil {
			if strings.Contains(tok, "=") {
				return nil, fmt.Errorf("expected factory name, got assignment %q", tok)
			}
			if !validFactoryName(tok) {
				return nil, fmt.Errorf("invalid factory name %q", tok)
			}
			cur = &elemSpec{factory: tok}
			continue
		}
		key, value, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value after %q, got %q", cur.factory, tok)
		}
		cur.props = append(cur.props, propAssign{key: key, value: value})
	}
	if cur == nil {
		return nil, fmt.Errorf("description ends with a link separator")
	}
	specs = append(specs, *cur)
	return specs, nil
}

// ElementDesc summarizes one element of a parsed description, carrying
// the name Launch would assign.
type ElementDesc struct {
	Factory string
	Name    string
	Props   []PropDesc
}

// PropDesc is one key=value assignment in source order.
type PropDesc struct {
	Key   string
	Value string
}

// Describe parses a description without instantiating it. Names resolve
// the way Launch resolves them; factories are not checked against the
// registry.
func Describe(description string) ([]ElementDesc, error) {
	specs, err := parseDescription(description)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	out := make([]ElementDesc, 0, len(specs))
	for _, spec := range specs {
		d := ElementDesc{Factory: spec.factory}
		d.Name = fmt.Sprintf("%s%d", spec.factory, counts[spec.factory])
		counts[spec.factory]++
		for _, pa := range spec.props {
			if pa.key == "name" {
				if pa.value != "" {
					d.Name = pa.value
				}
				continue
			}
			d.Props = append(d.Props, PropDesc{Key: pa.key, Value: pa.value})
		}
		out = append(out, d)
	}
	return out, nil
}

// tokenize splits desc on whitespace, treating "!" as its own token and
// honoring quoted spans inside values.
func tokenize(desc string) ([]string, error) {
	var tokens []string
	var buf strings.Builder
	var quote byte

	flush := func() {
		if buf.Len() > 0 {
			tokens = append(tokens, buf.String())
			buf.Reset()
		}
	}

	for i := 0; i < len(desc); i++ {
		c := desc[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				buf.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ' ' || c == '\t' || c == '\n':
			flush()
		case c == '!':
			flush()
			tokens = append(tokens, "!")
		default:
			buf.WriteByte(c)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %q quote", string(quote))
	}
	flush()
	return tokens, nil
}

func validFactoryName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
