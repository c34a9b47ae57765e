package orchestrator

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// dataLogger renders the bit-exact hex-dump format of spec.md §6:
// "[YYYY-MM-DD HH:MM:SS][dir] <hex 16 bytes pad-to-48>  | <printable-or-dot>"
type dataLogger struct {
	mu sync.Mutex
	f  *os.File
}

func newDataLogger(path string) (*dataLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &dataLogger{f: f}, nil
}

func (d *dataLogger) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	return d.f.Close()
}

// Write renders data as 16-byte hex-dump rows tagged with dir.
func (d *dataLogger) Write(dir string, data []byte) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	ts := time.Now().Format("2006-01-02 15:04:05")
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]
		fmt.Fprintf(d.f, "[%s][%s] %s  | %s\n", ts, dir, hexPad48(row), printableOrDot(row))
	}
}

func hexPad48(row []byte) string {
	var b strings.Builder
	for i, c := range row {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02x", c)
	}
	for b.Len() < 48 {
		b.WriteByte(' ')
	}
	return b.String()
}

func printableOrDot(row []byte) string {
	var b strings.Builder
	for _, c := range row {
		if c >= 0x20 && c < 0x7F {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func (o *Orchestrator) logData(dir string, data []byte) {
	if o.dataLog != nil {
		o.dataLog.Write(dir, data)
	}
}
