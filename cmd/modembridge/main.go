//go:build !windows
// +build !windows

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/onionmixer/modembridge/internal/orchestrator"
)

var version = "0.1.0"

const (
	exitOK          = 0
	exitGeneral     = 1
	exitInvalidArgs = 2
	exitIO          = 3
	exitConfig      = 4
	exitConnection  = 5
)

type cliFlags struct {
	ConfigPath  string
	Daemonize   bool
	Help        bool
	Version     bool
	HealthCheck bool
}

func parseFlags() (*cliFlags, error) {
	cfg := &cliFlags{}
	fs := flag.NewFlagSet("modembridge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.SortFlags = false

	fs.StringVarP(&cfg.ConfigPath, "config", "c", "/etc/modembridge.conf", "Path to config file")
	fs.BoolVarP(&cfg.Daemonize, "daemonize", "d", false, "Skip the startup banner (the process does not detach)")
	fs.BoolVarP(&cfg.Help, "help", "h", false, "Show help")
	fs.BoolVarP(&cfg.Version, "version", "v", false, "Show version")
	fs.BoolVar(&cfg.HealthCheck, "health-check", false, "Run a self-test and exit")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "modembridge - Hayes-modem-to-telnet bridge")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage: modembridge [-c config] [-d] [-h] [-v] [--health-check]")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}
	if cfg.Help {
		fs.Usage()
	}
	return cfg, nil
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(exitOK)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitInvalidArgs)
	}
	if cfg.Help {
		os.Exit(exitOK)
	}
	if cfg.Version {
		fmt.Printf("modembridge %s\n", version)
		os.Exit(exitOK)
	}
	if cfg.HealthCheck {
		os.Exit(runHealthCheck())
	}

	os.Exit(run(cfg))
}

func run(cli *cliFlags) int {
	sessionID := uuid.New().String()
	logger := log.New(os.Stderr, fmt.Sprintf("modembridge[%s] ", sessionID[:8]), log.LstdFlags)

	if !cli.Daemonize && term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Printf("modembridge %s starting, session %s\n", version, sessionID[:8])
	}

	loaded, err := LoadConfig(cli.ConfigPath)
	if err != nil {
		logger.Printf("config error: %v", err)
		return exitConfig
	}

	pf, err := AcquirePIDFile(defaultPIDFilePath)
	if err != nil {
		logger.Printf("pidfile error: %v", err)
		return exitIO
	}
	defer pf.Release()

	orch := orchestrator.New(loaded.OrchestratorConfig, logger)

	watcher, err := watchConfig(cli.ConfigPath, orch, logger)
	if err != nil {
		logger.Printf("config watcher disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				orch.RequestReload()
			default:
				orch.RequestShutdown()
				cancel()
				return
			}
		}
	}()

	housekeeping := startHousekeeping(pf, logger)
	defer housekeeping.Stop()

	if err := orch.Run(ctx); err != nil {
		logger.Printf("orchestrator exited with error: %v", err)
		return exitConnection
	}
	return exitOK
}
