// Package vision analyzes sampled frames for perceptual assertions. Pixels
// are classified against a fixed palette of named colors by Lab-space
// nearest match; a color is significant on a frame when its share of the
// pixels exceeds a fixed threshold.
package vision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/pipelab/pipespec/pkg/backend"
)

// SignificanceThreshold is the fraction of frame pixels a color must
// exceed to count as significant. A distinct bar of a seven-bar test
// pattern covers about 14% of the frame, so 10% admits real pattern
// regions while rejecting blend noise. Fixed to keep verdicts
// reproducible across runs.
const SignificanceThreshold = 0.10

// PaletteColor is one named reference color.
type PaletteColor struct {
	Name    string
	R, G, B uint8
}

// palette holds the sixteen basic CSS colors plus a few common extras.
// Note green is the half-intensity CSS green; full-intensity green is
// lime, which is what test sources render.
var palette = []PaletteColor{
	{"black", 0x00, 0x00, 0x00},
	{"white", 0xFF, 0xFF, 0xFF},
	{"gray", 0x80, 0x80, 0x80},
	{"silver", 0xC0, 0xC0, 0xC0},
	{"red", 0xFF, 0x00, 0x00},
	{"maroon", 0x80, 0x00, 0x00},
	{"lime", 0x00, 0xFF, 0x00},
	{"green", 0x00, 0x80, 0x00},
	{"blue", 0x00, 0x00, 0xFF},
	{"navy", 0x00, 0x00, 0x80},
	{"yellow", 0xFF, 0xFF, 0x00},
	{"olive", 0x80, 0x80, 0x00},
	{"cyan", 0x00, 0xFF, 0xFF},
	{"teal", 0x00, 0x80, 0x80},
	{"magenta", 0xFF, 0x00, 0xFF},
	{"purple", 0x80, 0x00, 0x80},
	{"orange", 0xFF, 0xA5, 0x00},
	{"pink", 0xFF, 0xC0, 0xCB},
	{"brown", 0xA5, 0x2A, 0x2A},
	{"gold", 0xFF, 0xD7, 0x00},
}

// aliases accepted by Lookup, mapped to canonical palette names.
var aliases = map[string]string{
	"aqua":    "cyan",
	"fuchsia": "magenta",
	"grey":    "gray",
}

// paletteLab caches the Lab coordinates of every palette entry.
var paletteLab = func() [][3]float64 {
	out := make([][3]float64, len(palette))
	for i, p := range palette {
		l, a, b := rgbToColor(p.R, p.G, p.B).Lab()
		out[i] = [3]float64{l, a, b}
	}
	return out
}()

func rgbToColor(r, g, b uint8) colorful.Color {
	return colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
}

// Names lists the canonical palette color names.
func Names() []string {
	out := make([]string, len(palette))
	for i, p := range palette {
		out[i] = p.Name
	}
	return out
}

// Lookup resolves name (or an accepted alias) to its palette entry.
func Lookup(name string) (PaletteColor, bool) {
	name = strings.ToLower(name)
	if canon, ok := aliases[name]; ok {
		name = canon
	}
	for _, p := range palette {
		if p.Name == name {
			return p, true
		}
	}
	return PaletteColor{}, false
}

// ColorFraction pairs a palette color with its share of frame pixels.
type ColorFraction struct {
	Name     string
	Fraction float64
}

// Analysis is the per-color pixel share of one frame.
type Analysis struct {
	fractions map[string]float64
}

// Classify buckets every pixel of f to its nearest palette color in Lab
// space. A frame with no pixels yields a zero fraction for every color,
// never a NaN.
func Classify(f *backend.Frame) Analysis {
	counts := make(map[string]int, len(palette))
	total := 0
	if f != nil {
		for i := 0; i+3 < len(f.Pixels); i += 4 {
			l, a, b := rgbToColor(f.Pixels[i], f.Pixels[i+1], f.Pixels[i+2]).Lab()
			best, bestDist := 0, -1.0
			for j, pl := range paletteLab {
				dl, da, db := l-pl[0], a-pl[1], b-pl[2]
				d := dl*dl + da*da + db*db
				if bestDist < 0 || d < bestDist {
					best, bestDist = j, d
				}
			}
			counts[palette[best].Name]++
			total++
		}
	}
	fractions := make(map[string]float64, len(counts))
	if total > 0 {
		for name, n := range counts {
			fractions[name] = float64(n) / float64(total)
		}
	}
	return Analysis{fractions: fractions}
}

// Fraction is the share of pixels classified as name (aliases accepted).
func (a Analysis) Fraction(name string) float64 {
	p, ok := Lookup(name)
	if !ok {
		return 0
	}
	return a.fractions[p.Name]
}

// Top returns the n largest color shares, descending, ties by name.
func (a Analysis) Top(n int) []ColorFraction {
	out := make([]ColorFraction, 0, len(a.fractions))
	for name, frac := range a.fractions {
		out = append(out, ColorFraction{Name: name, Fraction: frac})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Fraction != out[j].Fraction {
			return out[i].Fraction > out[j].Fraction
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// AssertionError reports a significant-color assertion that did not hold
// before its deadline.
type AssertionError struct {
	Element   string
	Color     string
	Threshold float64
	Best      float64
	Observed  []ColorFraction
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "color %q never became significant on %q: best share %.3f, threshold %.2f",
		e.Color, e.Element, e.Best, e.Threshold)
	if len(e.Observed) > 0 {
		b.WriteString("; observed")
		for _, cf := range e.Observed {
			fmt.Fprintf(&b, " %s=%.3f", cf.Name, cf.Fraction)
		}
	}
	return b.String()
}

// AssertSignificant samples frames from element until color's share
// exceeds the significance threshold or timeout passes. Sampling repeats
// at the frame cadence; sample errors (no frame, disabled capture) abort
// the assertion as their own failure.
func AssertSignificant(ctx context.Context, element, color string, timeout time.Duration, sample func(context.Context) (*backend.Frame, error)) error {
	if _, ok := Lookup(color); !ok {
		return fmt.Errorf("unknown color name %q (palette: %s)", color, strings.Join(Names(), ", "))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var best float64
	var last Analysis
	for {
		f, err := sample(ctx)
		if err != nil {
			return err
		}
		an := Classify(f)
		if frac := an.Fraction(color); frac > SignificanceThreshold {
			return nil
		} else if frac > best {
			best = frac
		}
		last = an

		timer := time.NewTimer(f.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.Canceled) {
				// Scenario abort, not an assertion verdict.
				return ctx.Err()
			}
			return &AssertionError{
				Element:   element,
				Color:     color,
				Threshold: SignificanceThreshold,
				Best:      best,
				Observed:  last.Top(3),
			}
		case <-timer.C:
		}
	}
}
