package filesink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	gzip "github.com/klauspost/compress/gzip"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"

	"ssw-proc-logging/internal/metrics"
)

// managedFile is one file under the manager's control.
type managedFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// dirManager owns the sink's directory: naming, scanning, purge and the
// watch that detects files vanishing under us. All methods run on the
// sink's worker; only the fsnotify callback goroutine touches the
// rescanNeeded flag concurrently.
type dirManager struct {
	config Config
	logger *logrus.Logger

	usable       bool
	nextIndex    int // modo numérico
	rescanNeeded int32 // atomic; setado pelo watcher

	watcher *fsnotify.Watcher
}

func newDirManager(config Config, logger *logrus.Logger) *dirManager {
	return &dirManager{config: config, logger: logger}
}

// setup prepares the directory: creation, scan, watcher. Returns an error
// when the directory is unusable.
func (d *dirManager) setup() error {
	info, err := os.Stat(d.config.Dir)
	switch {
	case err == nil && !info.IsDir():
		d.usable = false
		return fmt.Errorf("log path %q is not a directory", d.config.Dir)
	case os.IsNotExist(err):
		if !d.config.CreateDirIfNeeded {
			d.usable = false
			return fmt.Errorf("log directory %q missing and creation disabled", d.config.Dir)
		}
		if err := os.MkdirAll(d.config.Dir, 0o755); err != nil {
			d.usable = false
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	case err != nil:
		d.usable = false
		return fmt.Errorf("failed to stat log directory: %w", err)
	}

	files, err := d.scan()
	if err != nil {
		d.usable = false
		return err
	}
	d.nextIndex = d.highestIndex(files) + 1

	if d.watcher == nil {
		if w, werr := fsnotify.NewWatcher(); werr == nil {
			if werr = w.Add(d.config.Dir); werr == nil {
				d.watcher = w
				go d.watchLoop(w)
			} else {
				w.Close()
				d.logger.WithError(werr).Warn("Directory watch unavailable; relying on periodic rescans")
			}
		}
	}

	atomic.StoreInt32(&d.rescanNeeded, 0)
	d.usable = true
	return nil
}

// watchLoop flags a rescan when files disappear behind our back.
func (d *dirManager) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				atomic.StoreInt32(&d.rescanNeeded, 1)
			}
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
			atomic.StoreInt32(&d.rescanNeeded, 1)
		}
	}
}

func (d *dirManager) close() {
	if d.watcher != nil {
		d.watcher.Close()
		d.watcher = nil
	}
	d.usable = false
}

// scan lists the managed files (matching prefix/suffix, not excluded),
// oldest first.
func (d *dirManager) scan() ([]managedFile, error) {
	entries, err := os.ReadDir(d.config.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}
	prefix := d.config.Name + "_"
	var files []managedFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if !strings.HasSuffix(name, ".log") && !strings.HasSuffix(name, ".log.gz") {
			continue
		}
		if d.excluded(name) {
			continue
		}
		info, ierr := e.Info()
		if ierr != nil {
			continue
		}
		files = append(files, managedFile{
			Path:    filepath.Join(d.config.Dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime.Before(files[j].ModTime) })
	return files, nil
}

// excluded aplica os padrões de exclusão configurados
func (d *dirManager) excluded(name string) bool {
	for _, pattern := range d.config.ExcludePatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// highestIndex extracts the largest numeric index among managed files.
func (d *dirManager) highestIndex(files []managedFile) int {
	highest := -1
	prefix := d.config.Name + "_"
	for _, f := range files {
		base := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(f.Path), ".gz"), ".log")
		idxText := strings.TrimPrefix(base, prefix)
		if len(idxText) != 4 {
			continue
		}
		if idx, err := strconv.Atoi(idxText); err == nil && idx > highest {
			highest = idx
		}
	}
	return highest
}

// nextFileName selects the next file path for an advance. In numeric mode a
// name whose file still has content is never reused; the index keeps
// rolling until a free or empty slot appears.
func (d *dirManager) nextFileName(now time.Time) string {
	if d.config.NameStyle == NameStyleByDate {
		return filepath.Join(d.config.Dir, fmt.Sprintf("%s_%s.log", d.config.Name, now.Format("20060102_150405")))
	}
	var candidate string
	for tries := 0; tries < 10000; tries++ {
		candidate = filepath.Join(d.config.Dir, fmt.Sprintf("%s_%04d.log", d.config.Name, d.nextIndex%10000))
		d.nextIndex++
		if info, err := os.Stat(candidate); err == nil && info.Size() > 0 {
			continue
		}
		break
	}
	return candidate
}

// continuationCandidate returns the newest managed plain file if the sink
// may keep appending to it, or "" to start a fresh file. A non-empty file
// is never truncated outside the normal advance path.
func (d *dirManager) continuationCandidate() (path string, size int64) {
	files, err := d.scan()
	if err != nil || len(files) == 0 {
		return "", 0
	}
	newest := files[len(files)-1]
	if strings.HasSuffix(newest.Path, ".gz") {
		return "", 0
	}
	if d.config.Advance.SizeLimit > 0 && newest.Size >= d.config.Advance.SizeLimit {
		return "", 0
	}
	if d.config.Advance.AgeLimit > 0 && time.Since(newest.ModTime) >= d.config.Advance.AgeLimit {
		return "", 0
	}
	return newest.Path, newest.Size
}

// needsCleanup reports whether the purge rules or a flagged rescan require
// a cleanup pass.
func (d *dirManager) needsCleanup() bool {
	if atomic.LoadInt32(&d.rescanNeeded) != 0 {
		return true
	}
	files, err := d.scan()
	if err != nil {
		return false
	}
	return d.overLimits(files)
}

func (d *dirManager) overLimits(files []managedFile) bool {
	p := d.config.Purge
	if p.MaxFiles > 0 && len(files) > p.MaxFiles {
		return true
	}
	if p.MaxTotalBytes > 0 {
		var total int64
		for _, f := range files {
			total += f.Size
		}
		if total > p.MaxTotalBytes {
			return true
		}
	}
	if p.MaxAge > 0 && len(files) > 0 && time.Since(files[0].ModTime) > p.MaxAge {
		return true
	}
	return false
}

// cleanup runs one bounded purge pass: oldest files first, at most
// MaxDeletesPerCleanup deletions, never the active file. Returns the number
// of files deleted.
func (d *dirManager) cleanup(activePath string) int {
	atomic.StoreInt32(&d.rescanNeeded, 0)
	files, err := d.scan()
	if err != nil {
		d.usable = false
		return 0
	}

	deletes := 0
	limit := d.config.MaxDeletesPerCleanup
	for d.overLimits(files) && deletes < limit && len(files) > 0 {
		victim := files[0]
		files = files[1:]
		if victim.Path == activePath {
			continue
		}
		if err := os.Remove(victim.Path); err != nil {
			d.logger.WithError(err).WithField("file", victim.Path).Warn("Purge failed to delete file")
			break
		}
		deletes++
		metrics.FilesPurgedTotal.WithLabelValues(d.config.Name).Inc()
	}
	return deletes
}

// diskPressure consults free space and reports whether writes should be
// refused to protect the volume.
func (d *dirManager) diskPressure() bool {
	if d.config.MinFreeDiskPercent <= 0 {
		return false
	}
	usage, err := disk.Usage(d.config.Dir)
	if err != nil {
		return false
	}
	return 100.0-usage.UsedPercent < d.config.MinFreeDiskPercent
}

// compress rewrites a finished file as gzip and removes the original.
func (d *dirManager) compress(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	if _, err = io.Copy(zw, in); err == nil {
		err = zw.Close()
	} else {
		zw.Close()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path + ".gz")
		return err
	}
	return os.Remove(path)
}
