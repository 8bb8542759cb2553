package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// dailyFile appends to <dir>/relic-events-YYYY-MM-DD.log and switches files
// when the UTC date changes.
type dailyFile struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

func newDailyFile(dir string, now func() time.Time) (*dailyFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}
	return &dailyFile{dir: dir, now: now}, nil
}

func (d *dailyFile) path(day string) string {
	return filepath.Join(d.dir, "relic-events-"+day+".log")
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	day := d.now().UTC().Format("2006-01-02")
	if d.file == nil || day != d.day {
		if d.file != nil {
			_ = d.file.Close()
		}
		f, err := os.OpenFile(d.path(day), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			d.file = nil
			return 0, err
		}
		d.file, d.day = f, day
	}
	return d.file.Write(p)
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
