package scan

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mwaldt/stagescan/grid"
)

// Link is the request surface the controller needs from the serial
// layer. Exactly one logical caller uses it at a time.
type Link interface {
	IsOpen() bool
	SendCommand(string) error
	WaitForAck(time.Duration) bool
	RequestADCValue(time.Duration) (int, bool)
}

const (
	configAckTimeout = 20 * time.Second
	moveAckTimeout   = 5 * time.Second
	sampleTimeout    = 2 * time.Second
)

var (
	ErrLinkClosed = errors.New("link not open")
	ErrScanActive = errors.New("scan already active")
	ErrAckTimeout = errors.New("no acknowledgement")

	errAborted = errors.New("aborted")
)

// Controller sequences raster scans over the link. It owns the scan
// parameters, the measurement grid, and the stage position, which is
// dead-reckoned: the hardware never reports where it is, so the
// position is the sum of acknowledged move deltas and nothing else.
type Controller struct {
	link Link

	mx       sync.Mutex
	params   Params
	pos      grid.Position
	grid     *grid.Grid
	state    State
	running  bool
	busy     bool // link claimed by a run or an in-flight jog
	done     chan struct{}
	onSample func(grid.Position, float64)
	onState  func(State)

	abort int32
}

// New returns an idle controller at position (0,0) with an unsampled
// workspace×workspace grid. Use SetPosition to declare where the stage
// actually sits before the first move.
func New(l Link, workspace int) *Controller {
	return &Controller{link: l, grid: grid.New(workspace)}
}

// Configure validates and replaces the live parameters. A run already
// in progress keeps the snapshot it started with.
func (c *Controller) Configure(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mx.Lock()
	c.params = p
	c.mx.Unlock()
	return nil
}

func (c *Controller) Params() Params {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.params
}

func (c *Controller) Position() grid.Position {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.pos
}

// SetPosition declares the stage's current physical location. Rejected
// while a run is active.
func (c *Controller) SetPosition(p grid.Position) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.running {
		return ErrScanActive
	}
	c.pos = p
	return nil
}

// Snapshot copies the measurement grid for the renderer.
func (c *Controller) Snapshot() [][]float64 {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.grid.Snapshot()
}

func (c *Controller) State() State {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.state
}

// OnSample registers the callback fired after every sample is written.
func (c *Controller) OnSample(fn func(pos grid.Position, value float64)) {
	c.mx.Lock()
	c.onSample = fn
	c.mx.Unlock()
}

// OnState registers the callback fired on run state transitions.
func (c *Controller) OnState(fn func(State)) {
	c.mx.Lock()
	c.onState = fn
	c.mx.Unlock()
}

// Start begins a raster run in its own goroutine. It is rejected when
// the link is closed, a run is already active, or the parameters do
// not describe a scannable area.
func (c *Controller) Start() error {
	if !c.link.IsOpen() {
		return ErrLinkClosed
	}
	c.mx.Lock()
	if c.running || c.busy {
		c.mx.Unlock()
		return ErrScanActive
	}
	p := c.params
	if err := p.Validate(); err != nil {
		c.mx.Unlock()
		return err
	}
	if p.Extension == 0 {
		c.mx.Unlock()
		return fmt.Errorf("%w: extension must be positive", ErrInvalidParams)
	}
	c.running = true
	c.busy = true
	c.done = make(chan struct{})
	atomic.StoreInt32(&c.abort, 0)
	c.mx.Unlock()

	go c.run(p)
	return nil
}

// Abort requests a cooperative stop. The run ends at the next column
// boundary; a move already dispatched is not unwound.
func (c *Controller) Abort() {
	atomic.StoreInt32(&c.abort, 1)
}

func (c *Controller) aborted() bool {
	return atomic.LoadInt32(&c.abort) == 1
}

// Wait blocks until the current run ends. It returns immediately when
// no run is active.
func (c *Controller) Wait() {
	c.mx.Lock()
	done := c.done
	c.mx.Unlock()
	if done != nil {
		<-done
	}
}

// Jog performs one manual move. The link is claimed for the full
// duration of the move, ack wait included, so a Start arriving while
// the jog is still in flight is rejected rather than interleaved.
func (c *Controller) Jog(axis byte, delta int) error {
	if axis != 'x' && axis != 'y' {
		return fmt.Errorf("%w: axis %q", ErrInvalidParams, string(axis))
	}
	if !c.link.IsOpen() {
		return ErrLinkClosed
	}
	c.mx.Lock()
	if c.running || c.busy {
		c.mx.Unlock()
		return ErrScanActive
	}
	c.busy = true
	c.mx.Unlock()
	defer func() {
		c.mx.Lock()
		c.busy = false
		c.mx.Unlock()
	}()
	return c.moveAxis(axis, delta)
}

func (c *Controller) run(p Params) {
	err := c.scan(p)
	switch {
	case err == nil:
	case errors.Is(err, errAborted):
		c.setState(Aborted)
		log.Println("scan aborted at", c.Position())
	default:
		log.Println("ERROR: scan:", err)
	}

	c.mx.Lock()
	c.state = Idle
	c.running = false
	c.busy = false
	close(c.done)
	fn := c.onState
	c.mx.Unlock()
	if fn != nil {
		fn(Idle)
	}
}

func (c *Controller) scan(p Params) error {
	c.setState(Configuring)
	if err := c.command(fmt.Sprintf("set speed=%d", p.Speed)); err != nil {
		return err
	}
	if err := c.command(fmt.Sprintf("set tau=%d", p.DelayMillis)); err != nil {
		return err
	}

	c.setState(Homing)
	pos := c.Position()
	if err := c.moveAxis('x', p.Center.X-pos.X); err != nil {
		return err
	}
	if err := c.moveAxis('y', p.Center.Y-pos.Y); err != nil {
		return err
	}
	if err := c.moveAxis('x', -p.Extension); err != nil {
		return err
	}
	if err := c.moveAxis('y', -p.Extension); err != nil {
		return err
	}
	if c.aborted() {
		return errAborted
	}
	if err := c.command("adc on"); err != nil {
		return err
	}

	c.setState(Scanning)
	n := p.points()
	wait := sampleTimeout + time.Duration(p.DelayMillis)*time.Millisecond
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			if c.aborted() {
				return errAborted
			}
			v, ok := c.link.RequestADCValue(wait)
			val := math.NaN()
			if ok {
				val = float64(v)
			}
			c.record(val, p.StepSize)

			// an abort raised during the sample wait stops the run
			// before the step toward the next column goes out
			if c.aborted() {
				return errAborted
			}
			if err := c.moveAxis('x', p.StepSize); err != nil {
				return err
			}
		}
		if err := c.moveAxis('x', -p.StepSize*n); err != nil {
			return err
		}
		if row < n-1 {
			if err := c.moveAxis('y', p.StepSize); err != nil {
				return err
			}
		}
	}

	c.setState(Returning)
	if err := c.link.SendCommand("adc off"); err != nil {
		log.Println("ERROR: adc off:", err)
	}
	pos = c.Position()
	if err := c.moveAxis('x', p.Center.X-pos.X); err != nil {
		log.Println("ERROR: return:", err)
	}
	pos = c.Position()
	if err := c.moveAxis('y', p.Center.Y-pos.Y); err != nil {
		log.Println("ERROR: return:", err)
	}
	return nil
}

// command sends one configuration command and requires its ack.
func (c *Controller) command(cmd string) error {
	if err := c.link.SendCommand(cmd); err != nil {
		return err
	}
	if !c.link.WaitForAck(configAckTimeout) {
		return fmt.Errorf("%w for %q", ErrAckTimeout, cmd)
	}
	return nil
}

// moveAxis issues one relative move, framed as x+10 or y-2, and
// updates the dead-reckoned position only when the firmware
// acknowledged it. A zero delta sends nothing and succeeds. Callers
// treat a failure as fatal to the run in progress.
func (c *Controller) moveAxis(axis byte, delta int) error {
	if delta == 0 {
		return nil
	}
	cmd := fmt.Sprintf("%c%+d", axis, delta)
	if err := c.link.SendCommand(cmd); err != nil {
		return err
	}
	if !c.link.WaitForAck(moveAckTimeout) {
		return fmt.Errorf("%w for %q", ErrAckTimeout, cmd)
	}
	c.mx.Lock()
	if axis == 'x' {
		c.pos.X += delta
	} else {
		c.pos.Y += delta
	}
	c.mx.Unlock()
	return nil
}

// record writes one sample, or NaN for a miss, into the grid. With a
// step size above one the single reading stands in for the whole
// covered block, so it is replicated across the step-wide neighborhood
// of the current position. Out-of-workspace cells are dropped. The
// renderer is notified once per sample.
func (c *Controller) record(val float64, step int) {
	c.mx.Lock()
	pos := c.pos
	half := step / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			c.grid.Set(pos.Add(dx, dy), val)
		}
	}
	fn := c.onSample
	c.mx.Unlock()
	if fn != nil {
		fn(pos, val)
	}
}

func (c *Controller) setState(s State) {
	c.mx.Lock()
	c.state = s
	fn := c.onState
	c.mx.Unlock()
	if fn != nil {
		fn(s)
	}
}
