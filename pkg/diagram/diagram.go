// Package diagram renders pipeline descriptions as element-chain
// diagrams, either Mermaid or ASCII boxes.
package diagram

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/pipelab/pipespec/pkg/backend/sim"
)

// Format selects the diagram rendering.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Generate produces a diagram string from a parse-launch description.
func Generate(description string, format Format) (string, error) {
	elements, err := sim.Describe(description)
	if err != nil {
		return "", fmt.Errorf("parse description: %w", err)
	}
	switch format {
	case FormatMermaid:
		return generateMermaid(elements), nil
	case FormatASCII:
		return generateASCII(elements), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// --- Mermaid flowchart ---

func generateMermaid(elements []sim.ElementDesc) string {
	var b strings.Builder
	b.WriteString("graph LR\n")
	for i, el := range elements {
		b.WriteString("    " + nodeDefinition(el) + "\n")
		if i < len(elements)-1 {
			b.WriteString(fmt.Sprintf("    %s --> %s\n",
				safeID(el.Name), safeID(elements[i+1].Name)))
		}
	}
	return b.String()
}

func nodeDefinition(el sim.ElementDesc) string {
	lines := []string{el.Factory, "name=" + el.Name}
	for _, p := range el.Props {
		lines = append(lines, truncate(p.Key+"="+p.Value, 30))
	}
	return fmt.Sprintf(`%s["%s"]`, safeID(el.Name), escMermaid(strings.Join(lines, "<br/>")))
}

// --- ASCII ---

const connector = " --> "

func generateASCII(elements []sim.ElementDesc) string {
	boxes := make([][]string, len(elements))
	height := 0
	for i, el := range elements {
		boxes[i] = renderBox(el)
		if len(boxes[i]) > height {
			height = len(boxes[i])
		}
	}

	// Join the boxes row by row; the connector sits on the factory row.
	var b strings.Builder
	for row := 0; row < height; row++ {
		var parts []string
		for i, box := range boxes {
			width := runewidth.StringWidth(box[0])
			line := strings.Repeat(" ", width)
			if row < len(box) {
				line = box[row]
			}
			parts = append(parts, line)
			if i < len(boxes)-1 {
				if row == 1 {
					parts = append(parts, connector)
				} else {
					parts = append(parts, strings.Repeat(" ", len(connector)))
				}
			}
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, ""), " ") + "\n")
	}
	return b.String()
}

// renderBox draws one element as box lines of uniform display width:
// the factory name, the resolved name and each property.
func renderBox(el sim.ElementDesc) []string {
	content := []string{el.Factory, "name=" + el.Name}
	for _, p := range el.Props {
		content = append(content, truncate(p.Key+"="+p.Value, 28))
	}

	width := 0
	for _, line := range content {
		if w := runewidth.StringWidth(line); w > width {
			width = w
		}
	}

	lines := []string{"┌" + strings.Repeat("─", width+2) + "┐"}
	for _, line := range content {
		lines = append(lines, "│ "+pad(line, width)+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width+2)+"┘")
	return lines
}

// pad right-pads s to the given display width.
func pad(s string, width int) string {
	if w := runewidth.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// --- string helpers ---

func safeID(id string) string {
	r := strings.NewReplacer("-", "_", " ", "_", ".", "_")
	return r.Replace(id)
}

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
