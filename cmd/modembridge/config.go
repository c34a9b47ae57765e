package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/onionmixer/modembridge/internal/orchestrator"
	"github.com/onionmixer/modembridge/internal/serial"
)

// LoadedConfig wraps the orchestrator.Config the file produced.
type LoadedConfig struct {
	OrchestratorConfig orchestrator.Config
}

// LoadConfig reads a line-oriented "KEY = VALUE" file at path, applying
// recognized keys over orchestrator.DefaultConfig(). A key with an
// invalid value logs a warning and falls back to its default. A missing
// file leaves every default in place; any other open failure fails
// startup.
func LoadConfig(path string) (*LoadedConfig, error) {
	cfg := orchestrator.DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadedConfig{OrchestratorConfig: cfg}, nil
		}
		return nil, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()

	applyConfigLines(f, &cfg)
	return &LoadedConfig{OrchestratorConfig: cfg}, nil
}

func applyConfigLines(f *os.File, cfg *orchestrator.Config) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := splitKeyValue(line)
		if !ok {
			continue
		}
		applyKey(cfg, key, val)
	}
}

func splitKeyValue(line string) (key, val string, ok bool) {
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return "", "", false
	}
	key = strings.ToUpper(strings.TrimSpace(line[:idx]))
	val = strings.TrimSpace(line[idx+1:])
	return key, val, true
}

func applyKey(cfg *orchestrator.Config, key, val string) {
	switch key {
	case "SERIAL_PORT", "COMPORT":
		cfg.SerialDevice = val
	case "BAUDRATE":
		if n, err := strconv.Atoi(val); err == nil {
			cfg.SerialCfg.Baud = uint32(n)
		} else {
			log.Printf("config: invalid BAUDRATE %q, keeping %d", val, cfg.SerialCfg.Baud)
		}
	case "BIT_PARITY":
		switch strings.ToUpper(val) {
		case "N", "NONE":
			cfg.SerialCfg.Parity = serial.ParityNone
		case "E", "EVEN":
			cfg.SerialCfg.Parity = serial.ParityEven
		case "O", "ODD":
			cfg.SerialCfg.Parity = serial.ParityOdd
		default:
			log.Printf("config: invalid BIT_PARITY %q, keeping default", val)
		}
	case "BIT_DATA":
		if n, err := strconv.Atoi(val); err == nil {
			cfg.SerialCfg.DataBits = n
		} else {
			log.Printf("config: invalid BIT_DATA %q, keeping %d", val, cfg.SerialCfg.DataBits)
		}
	case "BIT_STOP":
		if n, err := strconv.Atoi(val); err == nil {
			cfg.SerialCfg.StopBits = n
		} else {
			log.Printf("config: invalid BIT_STOP %q, keeping %d", val, cfg.SerialCfg.StopBits)
		}
	case "FLOW":
		switch strings.ToUpper(val) {
		case "NONE":
			cfg.SerialCfg.Flow = serial.FlowNone
		case "XON-XOFF", "XONXOFF":
			cfg.SerialCfg.Flow = serial.FlowXonXoff
		case "RTS-CTS", "RTSCTS":
			cfg.SerialCfg.Flow = serial.FlowRTSCTS
		case "BOTH":
			cfg.SerialCfg.Flow = serial.FlowBoth
		default:
			log.Printf("config: invalid FLOW %q, keeping default", val)
		}
	case "TELNET_HOST":
		cfg.TelnetHost = val
	case "TELNET_PORT":
		if n, err := strconv.Atoi(val); err == nil {
			cfg.TelnetPort = n
		} else {
			log.Printf("config: invalid TELNET_PORT %q, keeping %d", val, cfg.TelnetPort)
		}
	case "DATA_LOG_ENABLED":
		cfg.DataLogEnabled = strings.EqualFold(val, "true") || val == "1"
	case "DATA_LOG_FILE":
		cfg.DataLogPath = val
	default:
		log.Printf("config: unrecognized key %q, ignoring", key)
	}
}

// configWatcher wraps an fsnotify.Watcher that makes the same reload
// request a SIGHUP makes when the config file is written or created.
// The orchestrator does not re-read the file in response: LoadConfig
// runs only at startup.
type configWatcher struct {
	w *fsnotify.Watcher
}

func (c *configWatcher) Close() error {
	if c == nil || c.w == nil {
		return nil
	}
	return c.w.Close()
}

// watchConfig starts watching path for writes and requests an
// orchestrator reload when one arrives.
func watchConfig(path string, orch *orchestrator.Orchestrator, logger *log.Logger) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					logger.Printf("config file changed, requesting reload")
					orch.RequestReload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Printf("config watcher error: %v", err)
			}
		}
	}()
	return &configWatcher{w: w}, nil
}
