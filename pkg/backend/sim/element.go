package sim

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/pipelab/pipespec/pkg/backend"
)

type propKind int

const (
	kindBool propKind = iota
	kindInt
	kindFloat
	kindString
	kindEnum
)

// propDef describes one settable property of a factory.
type propDef struct {
	name     string
	kind     propKind
	def      string
	enum     []string
	readOnly bool
	min, max int // kindInt bounds; both zero means unbounded
}

// factoryDef describes an element factory known to the engine.
type factoryDef struct {
	name     string
	source   bool
	sink     bool
	compound bool // wraps an inner sink exposed as an object property
	props    []propDef
}

func (f *factoryDef) prop(name string) (*propDef, bool) {
	for i := range f.props {
		if f.props[i].name == name {
			return &f.props[i], true
		}
	}
	return nil, false
}

// patternNames are the accepted videotestsrc patterns. Solid patterns fill
// the frame with one color; smpte renders seven vertical bars.
var patternNames = []string{"smpte", "snow", "black", "white", "red", "green", "blue", "checkers"}

var factories = map[string]*factoryDef{
	"videotestsrc": {
		name:   "videotestsrc",
		source: true,
		props: []propDef{
			{name: "pattern", kind: kindEnum, def: "smpte", enum: patternNames},
			{name: "width", kind: kindInt, def: "320", min: 16, max: 4096},
			{name: "height", kind: kindInt, def: "240", min: 16, max: 4096},
			{name: "framerate", kind: kindInt, def: "30", min: 1, max: 240},
			{name: "is-live", kind: kindBool, def: "false"},
			{name: "broken-timestamps", kind: kindBool, def: "false"},
		},
	},
	"videoconvert": {
		name: "videoconvert",
		props: []propDef{
			{name: "n-threads", kind: kindInt, def: "0", min: 0, max: 64},
		},
	},
	"identity": {
		name: "identity",
		props: []propDef{
			{name: "silent", kind: kindBool, def: "true"},
			{name: "sleep-time", kind: kindInt, def: "0", min: 0, max: 10_000_000},
			{name: "error-after", kind: kindInt, def: "-1", min: -1, max: 1 << 30},
		},
	},
	"capsfilter": {
		name: "capsfilter",
		props: []propDef{
			{name: "caps", kind: kindString, def: ""},
		},
	},
	"fakevideosink": {
		name: "fakevideosink",
		sink: true,
		props: []propDef{
			{name: "enable-last-sample", kind: kindBool, def: "true"},
			{name: "sync", kind: kindBool, def: "true"},
			{name: "last-sample", kind: kindString, def: "", readOnly: true},
		},
	},
	"fakesink": {
		name: "fakesink",
		sink: true,
		props: []propDef{
			{name: "enable-last-sample", kind: kindBool, def: "true"},
			{name: "sync", kind: kindBool, def: "true"},
			{name: "last-sample", kind: kindString, def: "", readOnly: true},
		},
	},
	"autovideosink": {
		name:     "autovideosink",
		sink:     true,
		compound: true,
	},
}

// element is one live element instance. values holds normalized serialized
// property values; sinks additionally retain their newest frame.
type element struct {
	mu      sync.Mutex
	name    string
	def     *factoryDef
	values  map[string]string
	last    *backend.Frame
	child   *element // compound inner sink
	errored bool     // identity error-after already fired
}

func newElement(def *factoryDef, name string) *element {
	el := &element{name: name, def: def, values: make(map[string]string)}
	for _, p := range def.props {
		el.values[p.name] = p.def
	}
	if def.compound {
		el.child = newElement(factories["fakevideosink"], name+"-actual-sink")
	}
	return el
}

func (el *element) Name() string    { return el.name }
func (el *element) Factory() string { return el.def.name }

// Set normalizes and stores value. Compound elements forward to their
// inner sink so descriptions can configure the wrapper directly.
func (el *element) Set(property, value string) error {
	if el.def.compound {
		return el.child.Set(property, value)
	}
	def, ok := el.def.prop(property)
	if !ok {
		return fmt.Errorf("%s.%s: %w", el.name, property, backend.ErrNoSuchProperty)
	}
	if def.readOnly {
		return fmt.Errorf("%s.%s is read-only: %w", el.name, property, backend.ErrTypeMismatch)
	}
	norm, err := normalize(def, value)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", el.name, property, err)
	}
	el.mu.Lock()
	el.values[property] = norm
	el.mu.Unlock()
	return nil
}

func (el *element) Get(property string) (string, error) {
	if el.def.compound {
		return el.child.Get(property)
	}
	if _, ok := el.def.prop(property); !ok {
		return "", fmt.Errorf("%s.%s: %w", el.name, property, backend.ErrNoSuchProperty)
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	if property == "last-sample" {
		if el.last == nil {
			return "", nil
		}
		return fmt.Sprintf("frame %dx%d@%d", el.last.Width, el.last.Height, el.last.Rate), nil
	}
	return el.values[property], nil
}

// Object exposes the inner sink of a compound element.
func (el *element) Object(property string) (backend.Element, bool) {
	if el.def.compound && property == "actual-sink" {
		return el.child, true
	}
	return nil, false
}

// LastFrame implements backend.FrameSource for sink elements.
func (el *element) LastFrame() (*backend.Frame, error) {
	if el.def.compound {
		return el.child.LastFrame()
	}
	if !el.def.sink {
		return nil, fmt.Errorf("%s: %w", el.name, backend.ErrNoFrame)
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.values["enable-last-sample"] != "true" {
		return nil, fmt.Errorf("%s: %w", el.name, backend.ErrLastSampleDisabled)
	}
	if el.last == nil {
		return nil, fmt.Errorf("%s: %w", el.name, backend.ErrNoFrame)
	}
	return el.last, nil
}

// storeFrame retains f as the newest frame unless retention is disabled.
func (el *element) storeFrame(f *backend.Frame) {
	if el.def.compound {
		el.child.storeFrame(f)
		return
	}
	el.mu.Lock()
	if el.values["enable-last-sample"] == "true" {
		el.last = f
	}
	el.mu.Unlock()
}

// intValue reads a kindInt property without error paths; defaults win on
// corruption, which cannot happen after normalize.
func (el *element) intValue(property string) int {
	el.mu.Lock()
	v := el.values[property]
	el.mu.Unlock()
	n, _ := strconv.Atoi(v)
	return n
}

func (el *element) boolValue(property string) bool {
	el.mu.Lock()
	v := el.values[property]
	el.mu.Unlock()
	return v == "true"
}

func (el *element) stringValue(property string) string {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.values[property]
}

// normalize checks value against the property type and returns its
// canonical serialization.
func normalize(def *propDef, value string) (string, error) {
	switch def.kind {
	case kindBool:
		switch value {
		case "true", "1", "yes":
			return "true", nil
		case "false", "0", "no":
			return "false", nil
		}
		return "", fmt.Errorf("%q is not a boolean: %w", value, backend.ErrTypeMismatch)
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", fmt.Errorf("%q is not an integer: %w", value, backend.ErrTypeMismatch)
		}
		if def.min != 0 || def.max != 0 {
			if n < def.min || n > def.max {
				return "", fmt.Errorf("%d out of range [%d, %d]: %w", n, def.min, def.max, backend.ErrTypeMismatch)
			}
		}
		return strconv.Itoa(n), nil
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", fmt.Errorf("%q is not a number: %w", value, backend.ErrTypeMismatch)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case kindEnum:
		for _, m := range def.enum {
			if value == m {
				return value, nil
			}
		}
		return "", fmt.Errorf("%q is not one of %v: %w", value, def.enum, backend.ErrTypeMismatch)
	default:
		return value, nil
	}
}
