package modsim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/thinkgos/timing/v4"
)

// DefaultUpdateInterval between two updater ticks.
const DefaultUpdateInterval = 5 * time.Second

// UpdateMode selects how the updater advances register values.
type UpdateMode byte

const (
	// Generic increments register parameters and toggles bit parameters.
	Generic UpdateMode = iota
	// Delegated mirrors the values an external Simulator has cached.
	Delegated
)

// Simulator is the capability contract of an external environmental
// simulator. Read and Write must be non blocking and safe for concurrent
// use; the simulator refreshes its own cache on its own cadence.
type Simulator interface {
	// Run starts the simulator's refresh loop with optional parameters.
	Run(params map[string]string) error
	// Read returns the simulator's last cached value for a register.
	Read(class RegisterClass, address uint32) (float64, error)
	// Write pushes a value back into the simulator's cache.
	Write(class RegisterClass, address uint32, value float64) error
}

// Updater periodically advances the register values of a slave context.
// The tick is re-armed after each pass, so a slow pass delays the next
// one instead of overlapping it.
type Updater struct {
	slave    *SlaveContext
	mode     UpdateMode
	sim      Simulator
	interval time.Duration
	tm       *timing.Timer
	running  uint32
	// held for the duration of one pass, Stop acquires it to join an
	// in-flight tick
	mu sync.Mutex
	clogs
}

// NewUpdater creates a generic updater for slave.
func NewUpdater(slave *SlaveContext) *Updater {
	return &Updater{
		slave:    slave,
		mode:     Generic,
		interval: DefaultUpdateInterval,
		clogs:    newClogs("modsim updater => "),
	}
}

// NewDelegatedUpdater creates an updater mirroring sim into slave.
func NewDelegatedUpdater(slave *SlaveContext, sim Simulator) *Updater {
	u := NewUpdater(slave)
	u.mode = Delegated
	u.sim = sim
	return u
}

// Mode returns the updater's update mode.
func (sf *Updater) Mode() UpdateMode { return sf.mode }

// SetInterval changes the tick interval, effective from the next arm.
func (sf *Updater) SetInterval(d time.Duration) {
	if d > 0 {
		sf.interval = d
	}
}

// Start runs the delegated simulator, if any, and schedules the first
// tick. Starting a started updater is a no-op.
func (sf *Updater) Start() error {
	if !atomic.CompareAndSwapUint32(&sf.running, 0, 1) {
		return nil
	}
	if sf.mode == Delegated {
		if err := sf.sim.Run(nil); err != nil {
			atomic.StoreUint32(&sf.running, 0)
			return err
		}
	}
	sf.tm = timing.NewTimer().WithJobFunc(sf.tick)
	timing.Add(sf.tm, sf.interval)
	sf.Debugf("started, %v interval", sf.interval)
	return nil
}

// Stop halts rescheduling and waits out an in-flight tick.
func (sf *Updater) Stop() {
	if !atomic.CompareAndSwapUint32(&sf.running, 1, 0) {
		return
	}
	sf.mu.Lock()
	sf.mu.Unlock()
	sf.Debugf("stopped")
}

// tick runs one update pass and re-arms the timer.
func (sf *Updater) tick() {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if atomic.LoadUint32(&sf.running) == 0 {
		return
	}
	switch sf.mode {
	case Generic:
		sf.genericPass()
	case Delegated:
		sf.delegatedPass()
	}
	if atomic.LoadUint32(&sf.running) == 1 {
		timing.Add(sf.tm, sf.interval)
	}
}

// genericPass advances every descriptor by the generic rules. An error
// on one descriptor is logged and never aborts the pass.
func (sf *Updater) genericPass() {
	for _, d := range sf.slave.Descriptors() {
		if err := sf.advance(d); err != nil {
			sf.Errorf("param %d (%s): %v", d.ParamID, d.Name, err)
		}
	}
}

// advance applies the generic rule to one descriptor: bit classes toggle
// between 0 and 1, register classes increment by one and wrap to min
// once the increment would pass max.
func (sf *Updater) advance(d *Descriptor) error {
	cur, err := sf.slave.ReadParam(d)
	if err != nil {
		return err
	}
	f, ok := asFloat(cur)
	if !ok {
		// string parameters have no generic rule
		return nil
	}
	if d.Class.Bit() {
		if d.Encoding == Boolean {
			return sf.slave.WriteParam(d, f == 0)
		}
		if f != 0 {
			return sf.slave.WriteParam(d, 0.0)
		}
		return sf.slave.WriteParam(d, 1.0)
	}
	next := f + 1
	if next > d.Max {
		next = d.Min
	}
	return sf.slave.WriteParam(d, next)
}

// delegatedPass copies every changed simulator value into the registers.
func (sf *Updater) delegatedPass() {
	for _, d := range sf.slave.Descriptors() {
		v, err := sf.sim.Read(d.Class, d.Address)
		if err != nil {
			sf.Errorf("param %d (%s): simulator read: %v", d.ParamID, d.Name, err)
			continue
		}
		cur, err := sf.slave.ReadParam(d)
		if err != nil {
			sf.Errorf("param %d (%s): %v", d.ParamID, d.Name, err)
			continue
		}
		if f, ok := asFloat(cur); ok && f == v {
			continue
		}
		if err := sf.slave.WriteParam(d, v); err != nil {
			sf.Errorf("param %d (%s): %v", d.ParamID, d.Name, err)
		}
	}
}
