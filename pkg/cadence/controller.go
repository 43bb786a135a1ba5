package cadence

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrBusy = errors.New("cadence: delivery already in progress")

// Phase of the controller state machine.
type Phase int

const (
	Idle Phase = iota
	Delivering
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Delivering:
		return "delivering"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is a snapshot of the controller. Index is meaningful only while
// Delivering and points at the chunk being typed.
type State struct {
	Phase Phase
	Index int
	Total int
}

// Sink receives the visible effects of a delivery.
type Sink interface {
	SetTyping(typing bool)
	Append(ctx context.Context, chunk string) error
}

// Controller reveals reply chunks one by one with typing delays.
type Controller struct {
	clock Clock

	mu    sync.Mutex
	state State
}

func NewController(clock Clock) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Controller{clock: clock}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Deliver runs chunks through the sink sequentially. A nil or empty chunk
// list delivers the fallback chunk.
func (c *Controller) Deliver(ctx context.Context, chunks []string, sink Sink) error {
	if len(chunks) == 0 {
		chunks = []string{FallbackChunk}
	}

	c.mu.Lock()
	if c.state.Phase == Delivering {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = State{Phase: Delivering, Index: 0, Total: len(chunks)}
	c.mu.Unlock()

	defer c.setState(State{Phase: Idle})

	for i, chunk := range chunks {
		c.setState(State{Phase: Delivering, Index: i, Total: len(chunks)})

		sink.SetTyping(true)
		err := c.clock.Sleep(ctx, Delay(chunk))
		sink.SetTyping(false)
		if err != nil {
			return fmt.Errorf("typing chunk %d: %w", i, err)
		}

		if err := sink.Append(ctx, chunk); err != nil {
			return fmt.Errorf("append chunk %d: %w", i, err)
		}

		if i < len(chunks)-1 {
			if err := c.clock.Sleep(ctx, Pause); err != nil {
				return fmt.Errorf("pause after chunk %d: %w", i, err)
			}
		}
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
