package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pipelab/pipespec/pkg/backend"
)

type eventKind int

const (
	evFrame eventKind = iota
	evStateChange
	evElementError
)

// event is one runtime observation delivered to an attached monitor.
// Frame events carry the presentation timestamp the source assigned.
type event struct {
	kind     eventKind
	elem     string
	pts      time.Duration
	from, to backend.State
	detail   string
}

// pipeline is a linear chain of sim elements. While playing, a pump
// goroutine renders frames from the source element at its configured rate
// and pushes them down the chain; sinks retain the newest frame.
type pipeline struct {
	logger   *slog.Logger
	settle   time.Duration
	elements []*element

	mu       sync.Mutex
	state    backend.State
	released bool
	quit     chan struct{}
	wg       sync.WaitGroup
	observer func(event)

	// transitions serializes SetState and Release against each other.
	transitions sync.Mutex
}

func (p *pipeline) State() backend.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *pipeline) Elements() []backend.Element {
	out := make([]backend.Element, len(p.elements))
	for i, el := range p.elements {
		out[i] = el
	}
	return out
}

// ByName finds an element by name, descending into compound elements so
// wrapped sinks are addressable directly.
func (p *pipeline) ByName(name string) (backend.Element, bool) {
	for _, el := range p.elements {
		if el.name == name {
			return el, true
		}
		if el.child != nil && el.child.name == name {
			return el.child, true
		}
	}
	return nil, false
}

// SetState drives the pipeline to target. The transition settles after a
// short latency per state hop; ctx cancellation abandons it. When leaving
// the playing state the pump is fully drained before SetState returns, so
// every frame event precedes the state-change event.
func (p *pipeline) SetState(ctx context.Context, target backend.State) error {
	p.transitions.Lock()
	defer p.transitions.Unlock()

	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return backend.ErrReleased
	}
	cur := p.state
	p.mu.Unlock()
	if target == cur {
		return nil
	}

	hops := int(target) - int(cur)
	if hops < 0 {
		hops = -hops
	}
	timer := time.NewTimer(p.settle * time.Duration(hops))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return backend.ErrReleased
	}
	prev := p.state
	p.state = target
	stopPump := prev == backend.StatePlaying && target != backend.StatePlaying
	startPump := target == backend.StatePlaying && prev != backend.StatePlaying
	quit := p.quit
	p.mu.Unlock()

	if stopPump && quit != nil {
		close(quit)
		p.wg.Wait()
		p.mu.Lock()
		p.quit = nil
		p.mu.Unlock()
	}
	if startPump {
		if src := p.source(); src != nil {
			q := make(chan struct{})
			p.mu.Lock()
			p.quit = q
			p.mu.Unlock()
			p.wg.Add(1)
			go p.pump(src, q)
		}
	}

	p.logger.Debug("pipeline state changed", slog.String("from", prev.String()), slog.String("to", target.String()))
	p.emit(event{kind: evStateChange, from: prev, to: target})
	return nil
}

// Release tears the pipeline down, stopping the pump first. Idempotent.
func (p *pipeline) Release() error {
	p.transitions.Lock()
	defer p.transitions.Unlock()

	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil
	}
	p.released = true
	quit := p.quit
	p.quit = nil
	p.state = backend.StateNull
	p.mu.Unlock()

	if quit != nil {
		close(quit)
		p.wg.Wait()
	}
	return nil
}

func (p *pipeline) source() *element {
	for _, el := range p.elements {
		if el.def.source {
			return el
		}
	}
	return nil
}

// pump renders frames until quit closes. Source properties are re-read
// every tick, so property changes take effect on the next frame.
func (p *pipeline) pump(src *element, quit chan struct{}) {
	defer p.wg.Done()
	var seq int64
	for {
		rate := src.intValue("framerate")
		if rate <= 0 {
			rate = 30
		}
		interval := time.Second / time.Duration(rate)
		timer := time.NewTimer(interval)
		select {
		case <-quit:
			timer.Stop()
			return
		case <-timer.C:
		}

		pts := time.Duration(seq) * interval
		if src.boolValue("broken-timestamps") && seq > 0 && seq%5 == 0 {
			// Regress behind the previous frame to trip monotonicity checks.
			pts = time.Duration(seq-2) * interval
		}
		w, h := src.intValue("width"), src.intValue("height")
		frame := &backend.Frame{
			Width:  w,
			Height: h,
			Rate:   rate,
			Pixels: renderPattern(src.stringValue("pattern"), w, h, seq),
		}

		for _, el := range p.elements {
			switch {
			case el.def.name == "identity":
				if after := el.intValue("error-after"); after >= 0 && seq+1 >= int64(after) && !el.errored {
					el.errored = true
					p.emit(event{
						kind:   evElementError,
						elem:   el.name,
						detail: fmt.Sprintf("configured to error after %d buffers", after),
					})
				}
			case el.def.sink:
				el.storeFrame(frame)
			}
		}
		p.emit(event{kind: evFrame, elem: src.name, pts: pts})
		seq++
	}
}

func (p *pipeline) emit(ev event) {
	p.mu.Lock()
	obs := p.observer
	p.mu.Unlock()
	if obs != nil {
		obs(ev)
	}
}

func (p *pipeline) setObserver(fn func(event)) {
	p.mu.Lock()
	p.observer = fn
	p.mu.Unlock()
}
