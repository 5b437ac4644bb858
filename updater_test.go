package modsim

import (
	"errors"
	"strings"
	"testing"
)

func paramByID(t *testing.T, slave *SlaveContext, id uint32) *Descriptor {
	t.Helper()
	for _, d := range slave.Descriptors() {
		if d.ParamID == id {
			return d
		}
	}
	t.Fatalf("param %d missing", id)
	return nil
}

func TestGenericPassIncrement(t *testing.T) {
	slave := defaultSlave(t)
	upd := NewUpdater(slave)
	setpoint := paramByID(t, slave, 3) // uint16, default 100, [5, 200]

	upd.genericPass()
	v, err := slave.ReadParam(setpoint)
	if err != nil {
		t.Fatalf("ReadParam() error = %v", err)
	}
	if v != uint64(101) {
		t.Fatalf("after one pass = %v, want 101", v)
	}

	// walk to the upper bound, the pass after reaching it wraps to min
	for i := 0; i < 99; i++ {
		upd.genericPass()
	}
	v, _ = slave.ReadParam(setpoint)
	if v != uint64(200) {
		t.Fatalf("at the bound = %v, want 200", v)
	}
	upd.genericPass()
	v, _ = slave.ReadParam(setpoint)
	if v != uint64(5) {
		t.Errorf("after the bound = %v, want the wrap to 5", v)
	}
}

func TestGenericPassFloat(t *testing.T) {
	slave := defaultSlave(t)
	upd := NewUpdater(slave)
	temp := paramByID(t, slave, 5) // float32, default 21.5, [-50, 60]

	upd.genericPass()
	v, _ := slave.ReadParam(temp)
	if v != 22.5 {
		t.Fatalf("after one pass = %v, want 22.5", v)
	}
	for i := 0; i < 37; i++ {
		upd.genericPass()
	}
	v, _ = slave.ReadParam(temp)
	if v != 59.5 {
		t.Fatalf("near the bound = %v, want 59.5", v)
	}
	// 60.5 would exceed max, the increment lands on min instead
	upd.genericPass()
	v, _ = slave.ReadParam(temp)
	if v != float64(-50) {
		t.Errorf("after the bound = %v, want -50", v)
	}
}

func TestGenericPassToggle(t *testing.T) {
	slave := defaultSlave(t)
	upd := NewUpdater(slave)
	pump := paramByID(t, slave, 1) // coil, boolean, default 0

	states := []bool{true, false, true}
	for i, want := range states {
		upd.genericPass()
		v, err := slave.ReadParam(pump)
		if err != nil {
			t.Fatalf("ReadParam() error = %v", err)
		}
		if v != want {
			t.Errorf("pass %d: coil = %v, want %v", i+1, v, want)
		}
	}
}

func TestGenericPassBitNumeric(t *testing.T) {
	text := `/**DEVICE_DESC;VendorName=Test
deviceId=1;networkId=1;plcBaseAddress=0
paramId=1;deviceId=1;registerType=coil;address=3;encoding=uint8
`
	tpl, err := NewParser().Parse(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	slave, err := NewSlaveContext(tpl)
	if err != nil {
		t.Fatalf("NewSlaveContext() error = %v", err)
	}
	upd := NewUpdater(slave)
	d := paramByID(t, slave, 1)

	// bit classes toggle 0/1 whatever the declared encoding
	upd.genericPass()
	v, _ := slave.ReadParam(d)
	if v != uint64(1) {
		t.Fatalf("after one pass = %v, want 1", v)
	}
	upd.genericPass()
	v, _ = slave.ReadParam(d)
	if v != uint64(0) {
		t.Errorf("after two passes = %v, want 0", v)
	}
}

// fakeSimulator serves canned values and records writes.
type fakeSimulator struct {
	values  map[uint32]float64
	failOn  uint32
	ran     bool
	runErr  error
	written map[uint32]float64
}

func (sf *fakeSimulator) Run(params map[string]string) error {
	sf.ran = true
	return sf.runErr
}

func (sf *fakeSimulator) Read(class RegisterClass, address uint32) (float64, error) {
	if sf.failOn != 0 && address == sf.failOn {
		return 0, errors.New("sensor fault")
	}
	return sf.values[address], nil
}

func (sf *fakeSimulator) Write(class RegisterClass, address uint32, value float64) error {
	if sf.written == nil {
		sf.written = make(map[uint32]float64)
	}
	sf.written[address] = value
	return nil
}

func TestDelegatedPassMirrors(t *testing.T) {
	slave := defaultSlave(t)
	sim := &fakeSimulator{values: map[uint32]float64{
		1:  1,    // coil / discrete input / holding share the address
		10: 750,  // humidity
		11: 18.5, // temperature
	}}
	upd := NewDelegatedUpdater(slave, sim)

	upd.delegatedPass()

	v, _ := slave.ReadParam(paramByID(t, slave, 4))
	if v != int64(750) {
		t.Errorf("humidity = %v, want 750", v)
	}
	v, _ = slave.ReadParam(paramByID(t, slave, 5))
	if v != 18.5 {
		t.Errorf("temperature = %v, want 18.5", v)
	}
	v, _ = slave.ReadParam(paramByID(t, slave, 1))
	if v != true {
		t.Errorf("pump coil = %v, want true", v)
	}
}

func TestDelegatedPassIsolatesErrors(t *testing.T) {
	slave := defaultSlave(t)
	sim := &fakeSimulator{
		values: map[uint32]float64{11: 30},
		failOn: 10,
	}
	upd := NewDelegatedUpdater(slave, sim)

	upd.delegatedPass()

	// the faulted parameter keeps its default, the rest still update
	v, _ := slave.ReadParam(paramByID(t, slave, 4))
	if v != int64(500) {
		t.Errorf("faulted humidity = %v, want the untouched default 500", v)
	}
	v, _ = slave.ReadParam(paramByID(t, slave, 5))
	if v != float64(30) {
		t.Errorf("temperature = %v, want 30", v)
	}
}

func TestDelegatedStartRunsSimulator(t *testing.T) {
	slave := defaultSlave(t)
	sim := &fakeSimulator{values: map[uint32]float64{}}
	upd := NewDelegatedUpdater(slave, sim)

	if err := upd.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer upd.Stop()
	if !sim.ran {
		t.Error("Start() must run the simulator first")
	}
	if err := upd.Start(); err != nil {
		t.Errorf("second Start() must be a no-op, got %v", err)
	}
}

func TestDelegatedStartPropagatesRunError(t *testing.T) {
	slave := defaultSlave(t)
	sim := &fakeSimulator{runErr: errors.New("no api key")}
	upd := NewDelegatedUpdater(slave, sim)

	if err := upd.Start(); err == nil {
		t.Fatal("Start() must surface the simulator's Run error")
	}
	// a failed start leaves the updater stoppable and restartable
	upd.Stop()
	sim.runErr = nil
	if err := upd.Start(); err != nil {
		t.Errorf("restart after a failed Run: %v", err)
	}
	upd.Stop()
}

func TestUpdaterSetInterval(t *testing.T) {
	upd := NewUpdater(defaultSlave(t))
	upd.SetInterval(0)
	if upd.interval != DefaultUpdateInterval {
		t.Errorf("a non-positive interval must keep the default, got %v", upd.interval)
	}
}
