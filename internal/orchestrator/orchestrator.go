// Package orchestrator wires the SerialEndpoint, TelnetEndpoint,
// ModemEmulator, SystemStateMachine, and fair Scheduler into the three
// long-lived threads of spec.md §5, and owns the shutdown sequence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onionmixer/modembridge/internal/bridgeerr"
	"github.com/onionmixer/modembridge/internal/buffer"
	"github.com/onionmixer/modembridge/internal/modem"
	"github.com/onionmixer/modembridge/internal/sched"
	"github.com/onionmixer/modembridge/internal/serial"
	"github.com/onionmixer/modembridge/internal/sysfsm"
	"github.com/onionmixer/modembridge/internal/telnet"
)

const (
	reopenBackoff  = 10 * time.Second
	managementTick = 20 * time.Millisecond
)

// Orchestrator owns every endpoint, pipeline, and scheduler instance
// for its lifetime, per spec.md §3's ownership rule. Threads only hold
// short-lived borrows.
type Orchestrator struct {
	cfg Config
	log *log.Logger

	Serial *serial.Endpoint
	Telnet *telnet.Endpoint
	Modem  *modem.Emulator
	Sys    *sysfsm.Machine
	Sched  *sched.State
	Tx     *sched.TransmissionCtrl

	pipelines [2]*buffer.Pipeline

	running atomic.Bool
	reload  atomic.Bool

	dataLog *dataLogger

	wg sync.WaitGroup
}

// New constructs an Orchestrator from cfg. It does not open any
// endpoint; call Run to do that.
func New(cfg Config, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	o := &Orchestrator{
		cfg:    cfg,
		log:    logger,
		Modem:  modem.NewEmulator(),
		Sys:    sysfsm.New(),
		Sched:  sched.New(),
		Tx:     sched.NewTransmissionCtrl(),
		Telnet: telnet.NewEndpoint(fmt.Sprintf("%s:%d", cfg.TelnetHost, cfg.TelnetPort)),
	}
	o.pipelines[buffer.SerialToTelnet] = buffer.NewPipeline(buffer.SerialToTelnet, cfg.RingCapacity)
	o.pipelines[buffer.TelnetToSerial] = buffer.NewPipeline(buffer.TelnetToSerial, cfg.RingCapacity)
	if cfg.DataLogEnabled {
		if dl, err := newDataLogger(cfg.DataLogPath); err == nil {
			o.dataLog = dl
		} else {
			logger.Printf("data log disabled: %v", err)
		}
	}
	o.running.Store(true)
	return o
}

// RequestShutdown is called from a SIGINT/SIGTERM handler. It does
// nothing but flip the running flag, per spec.md §5's "signal handlers
// do nothing but set these flags" rule.
func (o *Orchestrator) RequestShutdown() { o.running.Store(false) }

// RequestReload is called from a SIGHUP handler.
func (o *Orchestrator) RequestReload() { o.reload.Store(true) }

func (o *Orchestrator) shouldStop() bool { return !o.running.Load() }

// Run opens the serial endpoint, starts the three long-lived threads,
// and blocks until shutdown, executing the shutdown sequence of
// spec.md §5 before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	serialEp, err := serial.Open(o.cfg.SerialDevice, o.cfg.SerialCfg)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.Serial, err, "opening serial endpoint")
	}
	o.Serial = serialEp

	o.Sys.Transition(sysfsm.Initializing)
	o.Sys.Transition(sysfsm.Ready)

	o.wg.Add(3)
	go o.serialThread()
	go o.telnetThread(ctx)
	go o.managementThread(ctx)

	<-ctx.Done()
	o.running.Store(false)
	return o.shutdown()
}

// shutdown executes the six-step sequence of spec.md §5.
func (o *Orchestrator) shutdown() error {
	o.running.Store(false) // (1)
	if o.Telnet != nil {
		o.Telnet.Close() // (2)
	}
	if o.Serial != nil {
		o.Serial.DtrDropHangup() // (3)
	}
	o.pipelines[buffer.SerialToTelnet].Buffer.Close() // (4)
	o.pipelines[buffer.TelnetToSerial].Buffer.Close()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done: // (5)
	case <-time.After(30 * time.Second):
		o.log.Printf("shutdown: threads did not join within 30s, proceeding anyway")
	}

	if o.Serial != nil {
		o.Serial.Close() // (6)
	}
	if o.dataLog != nil {
		o.dataLog.Close()
	}
	return nil
}

// serialThread is the serial endpoint's only reader: it reads from the
// device, interprets Hayes commands while the modem is in COMMAND
// state, and forwards application bytes into the serial->telnet
// pipeline while ONLINE. The telnet->serial pipeline is drained by
// dispatch on the management thread, not here.
func (o *Orchestrator) serialThread() {
	defer o.wg.Done()
	buf := make([]byte, 4096)
	for !o.shouldStop() {
		n, err := o.Serial.Read(buf)
		if err != nil {
			o.handleSerialError(err)
			continue
		}
		if n > 0 {
			o.onSerialBytes(buf[:n])
		} else if o.Modem.State() == modem.StateOnline {
			// Read timed out with no bytes: this is the idle poll that
			// notices trailing guard silence and fires a pending "+++"
			// escape, since completion depends on the ABSENCE of
			// further bytes rather than on one arriving.
			o.checkModemEscape(time.Now())
		}
	}
}

// checkModemEscape is only ever called from the serial thread (same
// goroutine that calls FeedOnlineByte/FeedCommandByte), so the Emulator
// needs no lock of its own despite being polled on an idle timer.
func (o *Orchestrator) checkModemEscape(now time.Time) {
	if !o.Modem.CheckEscapeComplete(now) {
		return
	}
	o.Serial.Write([]byte(modem.FormatResult(modem.ResultOK, o.Modem.Verbose, o.Modem.Quiet)))
}

func (o *Orchestrator) onSerialBytes(data []byte) {
	switch o.Modem.State() {
	case modem.StateCommand:
		var out []byte
		for _, b := range data {
			emit, _ := o.Modem.FeedCommandByte(b)
			out = append(out, emit...)
		}
		if len(out) > 0 {
			o.Serial.Write(out)
		}
		if o.Modem.State() == modem.StateConnecting {
			o.Sys.CarrierRaised()
		}
	case modem.StateOnline:
		now := time.Now()
		var forward []byte
		for _, b := range data {
			res := o.Modem.FeedOnlineByte(b, now)
			if res.Forward {
				forward = append(forward, b)
			}
		}
		if len(forward) > 0 {
			o.logData("from_modem", forward)
			o.pipelines[buffer.SerialToTelnet].Buffer.WriteTimed(forward, time.Now().Add(time.Second))
		}
		o.checkModemEscape(now)
	}
}

func (o *Orchestrator) handleSerialError(err error) {
	if bridgeerr.Is(err, bridgeerr.Hangup) {
		o.Sys.CarrierDropped()
		return
	}
	o.log.Printf("serial error: %v", err)
	time.Sleep(reopenBackoff)
}

// telnetThread is the telnet endpoint's only reader: it dials the
// remote host when the system enters CONNECTING and reads application
// bytes into the telnet->serial pipeline. The serial->telnet pipeline
// is drained (and IAC-escaped) by dispatch on the management thread,
// not here.
func (o *Orchestrator) telnetThread(ctx context.Context) {
	defer o.wg.Done()
	buf := make([]byte, 4096)
	for !o.shouldStop() {
		if o.Sys.State() == sysfsm.Connecting {
			if err := o.Telnet.Dial(ctx); err != nil {
				o.log.Printf("telnet dial failed: %v", err)
				o.Sys.Transition(sysfsm.Ready)
				time.Sleep(reopenBackoff)
				continue
			}
			o.Sys.Transition(sysfsm.Negotiating)
			o.Sys.Transition(sysfsm.DataTransfer)
			o.Modem.SetOnline(true)
		}

		if o.Sys.State() != sysfsm.DataTransfer {
			time.Sleep(managementTick)
			continue
		}

		o.Telnet.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		app, err := o.Telnet.ReadApplication(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			o.log.Printf("telnet read error: %v", err)
			o.Sys.CarrierDropped()
			continue
		}
		if len(app) > 0 {
			o.logData("from_telnet", app)
			o.pipelines[buffer.TelnetToSerial].Buffer.WriteTimed(app, time.Now().Add(time.Second))
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// managementThread runs the scheduler tick, watermark evaluation,
// timer-driven transmission, and state-machine timeouts.
func (o *Orchestrator) managementThread(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(managementTick)
	defer ticker.Stop()

	for !o.shouldStop() {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			o.tick(now)
		}
	}
}

func (o *Orchestrator) tick(now time.Time) {
	if fired, to := o.Sys.CheckTimeout(now); fired {
		o.log.Printf("system state timeout, now %s", to)
	}

	serialStarving := o.Sched.IsStarving(buffer.SerialToTelnet, now)
	telnetStarving := o.Sched.IsStarving(buffer.TelnetToSerial, now)
	o.Sched.ApplyStarvationRecovery(now)

	// Pull each pipeline's active ring into its shadow before dispatch:
	// a starving direction forces the swap (override=true) so the
	// recovery quantum above always has fresh bytes to serve; otherwise
	// the swap only succeeds once the previous batch has fully drained.
	o.pipelines[buffer.SerialToTelnet].Buffer.Swap(serialStarving)
	o.pipelines[buffer.TelnetToSerial].Buffer.Swap(telnetStarving)

	o.dispatch(now)

	for _, p := range o.pipelines {
		lvl := p.Buffer.Watermark()
		p.SetPaused(lvl >= buffer.High)
	}

	if o.Tx.Due(now) {
		line := o.Tx.Fire(now, now.Format("15:04:05"))
		o.pipelines[buffer.TelnetToSerial].Buffer.WriteTimed([]byte(line), now.Add(time.Second))
	}

	if o.reload.CompareAndSwap(true, false) {
		o.log.Printf("reload requested (ignored: config is only read at startup)")
	}
}

// dispatch runs the fair scheduler's round-robin loop of spec.md §4.7:
// pick a direction, serve it for up to one quantum (or until a force
// switch condition fires), and repeat. It returns when both backlogs are
// empty, when the picked direction has nothing in its shadow ring, or
// when an iteration drains nothing. This is the only place that writes
// to Serial/Telnet on behalf of the opposite endpoint's pipeline, and
// the only caller of the scheduler's per-quantum cycle (tick itself
// only runs the starvation checks).
func (o *Orchestrator) dispatch(now time.Time) {
	for {
		backlogs := o.backlogs()
		if backlogs[0] == 0 && backlogs[1] == 0 {
			return
		}

		dir := o.Sched.PickDirection(o.pipelines, now)
		p := o.pipelines[dir]
		if !p.HasData() {
			return
		}

		o.Sched.BeginIteration(dir, o.pipelines, now)
		start := time.Now()
		drained := 0
		for {
			budget := o.Sched.BudgetBytes(sched.ChunkSize)
			if budget == 0 {
				break
			}
			shadow := p.Buffer.Shadow()
			if shadow.IsEmpty() {
				break
			}
			chunk := make([]byte, budget)
			n := shadow.Read(chunk)
			if n == 0 {
				break
			}
			o.writeDrained(dir, chunk[:n])
			p.RecordDrain(n)
			drained += n

			if p.BytesInTimeslice() >= sched.MaxBytesPerQuantum {
				break
			}
			if time.Since(start) >= o.Sched.Quantum() {
				break
			}
			if o.Sched.ShouldForceSwitch(opposite(dir), time.Now()) {
				break
			}
		}
		o.Sched.EndIteration(dir, time.Since(start), time.Now(), o.backlogs())

		if drained == 0 {
			// The scheduler's token bucket is exhausted for this real-time
			// instant; further iterations this tick won't fare better
			// since budget only replenishes with elapsed wall-clock time.
			return
		}
	}
}

func (o *Orchestrator) backlogs() [2]int {
	return [2]int{
		o.pipelines[buffer.SerialToTelnet].Buffer.Backlog(),
		o.pipelines[buffer.TelnetToSerial].Buffer.Backlog(),
	}
}

func (o *Orchestrator) writeDrained(dir buffer.Direction, data []byte) {
	if dir == buffer.SerialToTelnet {
		o.logData("to_telnet", data)
		o.Telnet.WriteApplication(data)
		return
	}
	o.logData("to_modem", data)
	o.Serial.Write(data)
}

func opposite(d buffer.Direction) buffer.Direction {
	if d == buffer.SerialToTelnet {
		return buffer.TelnetToSerial
	}
	return buffer.SerialToTelnet
}

