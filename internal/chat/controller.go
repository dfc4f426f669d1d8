package chat

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Completer turns one prompt into one reply. It is the only outbound
// dependency of a Controller.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RoleAt derives the author of the i-th log entry. Roles are not stored:
// user turns sit at even indexes and replies at odd ones.
func RoleAt(i int) string {
	if i%2 == 0 {
		return RoleUser
	}
	return RoleAssistant
}

// State is a point-in-time copy of a controller's UI state.
type State struct {
	View     View
	Messages []string
	Typing   bool
}

// Exchange describes one completed chat turn.
type Exchange struct {
	Prompt string
	Reply  string
	// Failed is set when Reply is FallbackReply; Err carries the cause.
	Failed bool
	Err    error
}

// Controller owns the state of one page session: the active view, the
// append-only message log and the typing flag.
type Controller struct {
	completer Completer
	minDelay  time.Duration
	maxDelay  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func() float64

	mu       sync.Mutex
	view     View
	messages []string
	typing   bool
}

type Option func(*Controller)

// WithTypingDelay sets the bounds of the artificial reply latency.
func WithTypingDelay(lo, hi time.Duration) Option {
	return func(c *Controller) {
		if lo < 0 {
			lo = 0
		}
		if hi < lo {
			hi = lo
		}
		c.minDelay, c.maxDelay = lo, hi
	}
}

// WithSleep replaces the timer used for the artificial latency.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = sleep }
}

// WithJitter replaces the [0,1) source used to pick a delay inside the bounds.
func WithJitter(jitter func() float64) Option {
	return func(c *Controller) { c.jitter = jitter }
}

func NewController(completer Completer, opts ...Option) *Controller {
	c := &Controller{
		completer: completer,
		minDelay:  500 * time.Millisecond,
		maxDelay:  1500 * time.Millisecond,
		sleep:     sleepContext,
		jitter:    rand.Float64,
		view:      ViewHome,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send runs one chat turn. Blank input is a no-op reported as
// ErrEmptyMessage. A second Send while a reply is outstanding is refused
// with ErrExchangeInFlight so that every user message is immediately
// followed by its reply in the log.
//
// Completion failures are not returned as errors: the fallback reply is
// appended and the Exchange is marked Failed.
func (c *Controller) Send(ctx context.Context, input string) (Exchange, error) {
	prompt := strings.TrimSpace(input)
	if prompt == "" {
		return Exchange{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.typing {
		c.mu.Unlock()
		return Exchange{}, ErrExchangeInFlight
	}
	c.messages = append(c.messages, input)
	c.typing = true
	c.mu.Unlock()
	defer c.clearTyping()

	ex := Exchange{Prompt: prompt}
	reply, err := c.respond(ctx, prompt)
	if err != nil {
		ex.Reply, ex.Failed, ex.Err = FallbackReply, true, err
	} else {
		ex.Reply = reply
	}

	c.mu.Lock()
	c.messages = append(c.messages, ex.Reply)
	c.typing = false
	c.mu.Unlock()
	return ex, nil
}

func (c *Controller) respond(ctx context.Context, prompt string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply, err = "", fmt.Errorf("%w: panic: %v", ErrAssistantUnavailable, r)
		}
	}()
	if err := c.sleep(ctx, c.typingDelay()); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAssistantUnavailable, err)
	}
	if c.completer == nil {
		return "", fmt.Errorf("%w: no completion client configured", ErrAssistantUnavailable)
	}
	reply, err = c.completer.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAssistantUnavailable, err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("%w: empty reply", ErrAssistantUnavailable)
	}
	return reply, nil
}

func (c *Controller) typingDelay() time.Duration {
	span := c.maxDelay - c.minDelay
	if span <= 0 {
		return c.minDelay
	}
	return c.minDelay + time.Duration(c.jitter()*float64(span))
}

func (c *Controller) clearTyping() {
	c.mu.Lock()
	c.typing = false
	c.mu.Unlock()
}

// SetView switches the active panel. It never affects an outstanding reply.
func (c *Controller) SetView(v View) error {
	parsed, err := ParseView(string(v))
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.view = parsed
	c.mu.Unlock()
	return nil
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]string, len(c.messages))
	copy(msgs, c.messages)
	return State{View: c.view, Messages: msgs, Typing: c.typing}
}

func (c *Controller) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
