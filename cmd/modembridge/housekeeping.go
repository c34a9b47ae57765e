//go:build !windows
// +build !windows

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
)

const lockGlob = "/var/lock/LCK..*"

// startHousekeeping schedules coarse periodic maintenance: sweeping
// stale UUCP lock files left behind by a killed instance, and
// confirming the pidfile still names this process. Errors are logged,
// never fatal -- housekeeping is best-effort.
func startHousekeeping(pf *PIDFile, logger *log.Logger) *cron.Cron {
	c := cron.New()
	c.AddFunc("@every 1m", func() {
		sweepStaleLocks(logger)
		checkPIDFile(pf, logger)
	})
	c.Start()
	return c
}

func sweepStaleLocks(logger *log.Logger) {
	matches, err := filepath.Glob(lockGlob)
	if err != nil {
		return
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		pid, ok := parsePID(data)
		if !ok {
			continue
		}
		if !pidAlive(pid) {
			logger.Printf("housekeeping: removing stale lock %s (pid %d dead)", path, pid)
			os.Remove(path)
		}
	}
}

func checkPIDFile(pf *PIDFile, logger *log.Logger) {
	if pf == nil {
		return
	}
	data, err := os.ReadFile(pf.path)
	if err != nil {
		logger.Printf("housekeeping: pidfile %s missing: %v", pf.path, err)
		return
	}
	pid, ok := parsePID(data)
	if !ok || pid != os.Getpid() {
		logger.Printf("housekeeping: pidfile %s no longer names this process, recreating", pf.path)
		os.WriteFile(pf.path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
	}
}
