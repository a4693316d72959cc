package occupancy

import (
	"fmt"
	"sync"
	"time"
)

// TickFunc receives the rendered remaining time ("4m 00s", "1h 05m", or the
// expiry label) for a countdown slot
type TickFunc func(slot CountdownSlot, text string)

// ExpireFunc is called once when a countdown's target passes
type ExpireFunc func(slot CountdownSlot)

// Countdown is a single-shot-per-target 1 Hz timer bound to one UI slot.
// Arming with a new target cancels the previous tick source before the new
// one starts; at most one live ticker exists per Countdown at any time.
type Countdown struct {
	slot     CountdownSlot
	onTick   TickFunc
	onExpire ExpireFunc
	clock    func() time.Time

	mu     sync.Mutex
	gen    uint64
	armed  bool
	target time.Time
	label  string
	stop   chan struct{}
}

// NewCountdown creates a disarmed countdown for the given slot. onExpire may
// be nil for slots that only display.
func NewCountdown(slot CountdownSlot, onTick TickFunc, onExpire ExpireFunc) *Countdown {
	return &Countdown{
		slot:     slot,
		onTick:   onTick,
		onExpire: onExpire,
		clock:    time.Now,
	}
}

// SetClock overrides the wall clock, for tests
func (c *Countdown) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// Arm schedules the countdown against target. Re-arming with the identical
// target and label is a no-op so an unchanged poll does not restart the
// display. A zero target freezes the slot instead of arming.
func (c *Countdown) Arm(target time.Time, expiryLabel string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if target.IsZero() {
		return
	}
	if c.armed && c.target.Equal(target) && c.label == expiryLabel {
		return
	}

	c.cancelLocked()
	c.gen++
	c.armed = true
	c.target = target
	c.label = expiryLabel
	c.stop = make(chan struct{})

	go c.run(c.gen, target, expiryLabel, c.stop)
}

// Disarm stops the tick source without firing the expiry callback
func (c *Countdown) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.gen++
	c.armed = false
	c.target = time.Time{}
}

// Armed returns the current target, and whether the countdown is live
func (c *Countdown) Armed() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.armed
}

func (c *Countdown) cancelLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Countdown) run(gen uint64, target time.Time, label string, stop chan struct{}) {
	// Render immediately so the display never waits a full second after a
	// rearm before showing the new remaining time.
	if !c.step(gen, target, label) {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.step(gen, target, label) {
				return
			}
		}
	}
}

// step renders one tick. It returns false when the countdown expired or was
// superseded. Delivery is checked against the current generation under the
// mutex, so no tick from an old target can be observed after Arm returns.
func (c *Countdown) step(gen uint64, target time.Time, label string) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	now := c.clock()
	remaining := target.Sub(now)
	expired := remaining < 0
	if expired {
		c.armed = false
	}
	onTick := c.onTick
	onExpire := c.onExpire
	c.mu.Unlock()

	if expired {
		if onTick != nil {
			onTick(c.slot, label)
		}
		if onExpire != nil {
			onExpire(c.slot)
		}
		return false
	}
	if onTick != nil {
		onTick(c.slot, FormatRemaining(remaining))
	}
	return true
}

// FormatRemaining renders a remaining duration the way the display shows it:
// "Mm Ss" below one hour, "Hh Mm" at or above it.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d >= time.Hour {
		h := int(d / time.Hour)
		m := int(d % time.Hour / time.Minute)
		return fmt.Sprintf("%dh %02dm", h, m)
	}
	m := int(d / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%dm %02ds", m, s)
}
