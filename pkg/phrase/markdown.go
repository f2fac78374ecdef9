package phrase

import (
	"fmt"
	"strings"
)

// Markdown renders the step vocabulary as a reference document: one
// section per template with the phrase shape, what it does and a
// runnable example line.
func Markdown() string {
	var b strings.Builder
	b.WriteString("# Step reference\n\n")
	b.WriteString("Every scenario line must match one of these phrases.\n")
	for _, t := range templates {
		shape, summary, _ := strings.Cut(t.Doc, " -- ")
		fmt.Fprintf(&b, "\n## `%s`\n\n%s.\n\n```gherkin\n%s\n```\n", shape, upperFirst(summary), t.Example)
	}
	return b.String()
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
