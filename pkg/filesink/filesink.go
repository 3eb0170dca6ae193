// Package filesink implements the rotating text-file sink: one configured
// directory, by-date or numeric file naming, advance by size and age,
// incremental purge, and resilient re-setup after directory failures.
//
// The sink does blocking I/O inline; production setups wrap it in a
// queuesink adapter so the file work happens on the adapter's delivery
// goroutine.
package filesink

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"ssw-proc-logging/internal/metrics"
	"ssw-proc-logging/pkg/linefmt"
	"ssw-proc-logging/pkg/severity"
	"ssw-proc-logging/pkg/types"
)

// Naming styles.
const (
	NameStyleByDate  = "by-date"
	NameStyleNumeric = "numeric"
)

// setupHoldOff is the minimum wait between directory recovery attempts.
const setupHoldOff = 30 * time.Second

// sizeRecheckEvery forces a size recheck after this many successful writes.
const sizeRecheckEvery = 100

// AdvanceConfig controls when the sink moves to the next file.
type AdvanceConfig struct {
	// SizeLimit advances once the active file reaches this many bytes.
	SizeLimit int64 `yaml:"size_limit"`

	// AgeLimit advances once the active file has been open this long.
	AgeLimit time.Duration `yaml:"age_limit"`

	// TestPeriod limits how often the age/size rules are re-evaluated.
	// Zero selects min(10s, AgeLimit/3).
	TestPeriod time.Duration `yaml:"test_period"`
}

// PurgeConfig controls deletion of old files.
type PurgeConfig struct {
	MaxFiles      int           `yaml:"max_files"`
	MaxTotalBytes int64         `yaml:"max_total_bytes"`
	MaxAge        time.Duration `yaml:"max_age"`
}

// Config configuração do sink de arquivo rotativo
type Config struct {
	Dir  string `yaml:"dir"`
	Name string `yaml:"name"`

	// Gate filters severities at this sink; zero admits everything.
	Gate severity.LogGate `yaml:"-"`

	// GateText is the textual gate used by config files; parsed into Gate
	// at construction when set.
	GateText string `yaml:"gate"`

	// NameStyle is "by-date" or "numeric" (default).
	NameStyle string `yaml:"name_style"`

	ExcludePatterns []string      `yaml:"exclude_patterns"`
	Advance         AdvanceConfig `yaml:"advance"`
	Purge           PurgeConfig   `yaml:"purge"`

	CreateDirIfNeeded    bool `yaml:"create_dir_if_needed"`
	MaxDeletesPerCleanup int  `yaml:"max_deletes_per_cleanup"`

	// CompressAdvanced gzips each file when the sink advances past it.
	CompressAdvanced bool `yaml:"compress_advanced"`

	// MinFreeDiskPercent refuses writes when the volume's free space
	// drops below this percentage. Zero disables the guard.
	MinFreeDiskPercent float64 `yaml:"min_free_disk_percent"`

	// SyncEachWrite fsyncs after every record.
	SyncEachWrite bool `yaml:"sync_each_write"`

	// Line selects the optional line-format fields.
	Line linefmt.Options `yaml:"line"`
}

// FileSink is the rotating file sink. Not internally threaded: callers (in
// practice a queuesink delivery goroutine) serialize HandleMessage.
type FileSink struct {
	config Config
	logger *logrus.Logger
	dir    *dirManager

	file       *os.File
	filePath   string
	fileSize   int64
	fileOpened time.Time

	writesSinceCheck int
	lastAdvanceCheck time.Time
	lastSetupAttempt time.Time

	droppedSinceLastSuccess int64
	lastLoggedDropped       int64

	stats    types.FileSinkStats
	shutdown bool

	internalSource *types.LoggerSourceInfo
}

// New creates the sink and attempts the initial directory setup. A failing
// setup is not fatal: the sink retries on the next record after the
// hold-off.
func New(config Config, logger *logrus.Logger) (*FileSink, error) {
	if config.Name == "" {
		config.Name = "log"
	}
	if config.NameStyle == "" {
		config.NameStyle = NameStyleNumeric
	}
	if config.NameStyle != NameStyleNumeric && config.NameStyle != NameStyleByDate {
		return nil, fmt.Errorf("unknown file name style: %q", config.NameStyle)
	}
	if config.GateText != "" {
		gate, err := severity.ParseLogGate(config.GateText)
		if err != nil {
			return nil, fmt.Errorf("file sink %q: %w", config.Name, err)
		}
		config.Gate = gate
	}
	if config.Gate.Mask == severity.MaskNone {
		config.Gate = severity.GateAll
	}
	if config.MaxDeletesPerCleanup <= 0 {
		config.MaxDeletesPerCleanup = 200
	}
	if config.Advance.TestPeriod <= 0 {
		config.Advance.TestPeriod = 10 * time.Second
		if config.Advance.AgeLimit > 0 && config.Advance.AgeLimit/3 < config.Advance.TestPeriod {
			config.Advance.TestPeriod = config.Advance.AgeLimit / 3
		}
	}
	if config.Line == (linefmt.Options{}) {
		// sem bloco line: no YAML: hora de parede e call site entram
		config.Line = linefmt.DefaultOptions()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &FileSink{
		config: config,
		logger: logger,
		dir:    newDirManager(config, logger),
		internalSource: &types.LoggerSourceInfo{
			ID:   types.InternalSourceID,
			Name: "filesink." + config.Name,
		},
	}
	if err := s.dir.setup(); err != nil {
		logger.WithError(err).WithField("sink", config.Name).
			Error("File sink directory setup failed; will retry")
		s.lastSetupAttempt = time.Now()
		metrics.SetComponentHealth("sink", config.Name, false)
		return s, err
	}
	metrics.SetComponentHealth("sink", config.Name, true)
	return s, nil
}

func (s *FileSink) Name() string { return s.config.Name }

func (s *FileSink) SupportsRefCountedRelease() bool { return true }

// HandleMessage writes one record: ensure the directory is ready, advance
// if needed, emit a pending drop summary, then append the formatted line.
// Any I/O failure closes the current file and drops the record; the next
// record triggers a recovery attempt subject to the hold-off.
func (s *FileSink) HandleMessage(m *types.LogMessage) {
	if m == nil {
		return
	}
	defer m.Release()

	if s.shutdown || !s.config.Gate.Allows(m.Sev()) {
		return
	}
	if !s.ensureReady() {
		s.noteDropped(1)
		return
	}
	s.advanceIfNeeded(false)
	if s.file == nil {
		s.noteDropped(1)
		return
	}

	if s.droppedSinceLastSuccess > s.lastLoggedDropped {
		s.writeDropSummary()
		if s.file == nil {
			s.noteDropped(1)
			return
		}
	}
	if err := s.writeRecord(m); err != nil {
		s.handleWriteError(err)
	}
}

func (s *FileSink) HandleMessages(batch []*types.LogMessage) {
	for _, m := range batch {
		s.HandleMessage(m)
	}
}

// Flush syncs the active file.
func (s *FileSink) Flush() error {
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

// Shutdown closes the active file and stops the directory watcher.
func (s *FileSink) Shutdown() {
	if s.shutdown {
		return
	}
	s.shutdown = true
	s.closeCurrent()
	s.dir.close()
	s.logger.WithFields(logrus.Fields{
		"sink":    s.config.Name,
		"written": s.stats.RecordsWritten,
		"dropped": s.stats.RecordsDropped,
	}).Info("File sink stopped")
}

// Stats returns a snapshot. Callers serialize with HandleMessage, as with
// every other method.
func (s *FileSink) Stats() types.FileSinkStats {
	out := s.stats
	out.CurrentFile = s.filePath
	out.LastSetupAttempt = s.lastSetupAttempt
	return out
}

// ensureReady brings the directory manager back up after failures,
// honoring the 30s hold-off.
func (s *FileSink) ensureReady() bool {
	if s.dir.usable {
		return true
	}
	if time.Since(s.lastSetupAttempt) < setupHoldOff {
		return false
	}
	s.lastSetupAttempt = time.Now()
	s.stats.LastSetupAttempt = s.lastSetupAttempt
	if err := s.dir.setup(); err != nil {
		s.logger.WithError(err).WithField("sink", s.config.Name).
			Error("File sink re-setup failed")
		metrics.SetComponentHealth("sink", s.config.Name, false)
		return false
	}
	s.closeCurrent() // o arquivo antigo pode ter sumido junto com o diretório
	metrics.SetComponentHealth("sink", s.config.Name, true)
	s.logger.WithField("sink", s.config.Name).Info("File sink recovered")
	return true
}

// advanceIfNeeded re-checks the advance rules, bounded by the test period
// unless forced by the periodic write-count recheck.
func (s *FileSink) advanceIfNeeded(force bool) {
	now := time.Now()
	if s.file != nil && !force && now.Sub(s.lastAdvanceCheck) < s.config.Advance.TestPeriod {
		// entre verificações, só o limite de tamanho corrente importa
		if s.config.Advance.SizeLimit <= 0 || s.fileSize < s.config.Advance.SizeLimit {
			return
		}
	}
	s.lastAdvanceCheck = now

	reason := ""
	switch {
	case s.file == nil:
		reason = "open"
	case s.config.Advance.SizeLimit > 0 && s.fileSize >= s.config.Advance.SizeLimit:
		reason = "size"
	case s.config.Advance.AgeLimit > 0 && now.Sub(s.fileOpened) >= s.config.Advance.AgeLimit:
		reason = "age"
	default:
		return
	}

	previous := s.filePath
	s.closeCurrent()
	if previous != "" && s.config.CompressAdvanced {
		if err := s.dir.compress(previous); err != nil {
			s.logger.WithError(err).WithField("file", previous).Warn("Failed to compress finished file")
		}
	}
	s.openNext(now, reason)

	if s.dir.needsCleanup() {
		s.stats.FilesPurged += int64(s.dir.cleanup(s.filePath))
	}
}

// openNext selects and opens the next file. On first open in numeric mode
// the newest existing file is continued in append mode when still below the
// limits; otherwise a fresh name is opened in truncate mode.
func (s *FileSink) openNext(now time.Time, reason string) {
	if s.dir.diskPressure() {
		s.logger.WithField("sink", s.config.Name).Warn("Low disk space; refusing to open log file")
		return
	}

	path := ""
	var size int64
	appendMode := false
	if reason == "open" && s.config.NameStyle == NameStyleNumeric {
		if candidate, csize := s.dir.continuationCandidate(); candidate != "" {
			path, size, appendMode = candidate, csize, true
		}
	}
	if path == "" {
		path = s.dir.nextFileName(now)
	}

	// nunca trunca um arquivo não vazio fora do caminho normal de avanço
	// (nome repetido depois de um crash, ou dois avanços no mesmo segundo)
	if !appendMode {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			appendMode = true
			size = info.Size()
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		s.logger.WithError(err).WithField("file", path).Error("Failed to open log file")
		s.dir.usable = false
		s.lastSetupAttempt = time.Now()
		return
	}

	s.file = f
	s.filePath = path
	s.fileSize = size
	s.fileOpened = now
	s.writesSinceCheck = 0
	if reason != "open" {
		s.stats.Advances++
		metrics.FileAdvancesTotal.WithLabelValues(s.config.Name, reason).Inc()
	}
	s.logger.WithFields(logrus.Fields{
		"sink":   s.config.Name,
		"file":   path,
		"append": appendMode,
		"reason": reason,
	}).Debug("Opened log file")
}

func (s *FileSink) writeRecord(m *types.LogMessage) error {
	line := linefmt.Format(m, s.config.Line)
	n, err := s.file.WriteString(line)
	s.fileSize += int64(n)
	if err != nil {
		return err
	}
	if s.config.SyncEachWrite {
		if err := s.file.Sync(); err != nil {
			return err
		}
	}

	s.stats.RecordsWritten++
	s.stats.BytesWritten += int64(n)
	s.stats.LastSuccessfulWrite = time.Now()
	s.writesSinceCheck++
	if s.writesSinceCheck >= sizeRecheckEvery {
		s.writesSinceCheck = 0
		s.advanceIfNeeded(true)
	}
	return nil
}

// writeDropSummary emits one line accounting for records lost since the
// last successful write.
func (s *FileSink) writeDropSummary() {
	dropped := s.droppedSinceLastSuccess - s.lastLoggedDropped
	s.lastLoggedDropped = s.droppedSinceLastSuccess

	m := types.NewMessage()
	m.Setup(s.internalSource, severity.Warning,
		fmt.Sprintf("dropped %d records since last successful write", dropped))
	m.NoteEmitted(0)
	if err := s.writeRecord(m); err != nil {
		s.handleWriteError(err)
	}
	m.Release()
}

func (s *FileSink) handleWriteError(err error) {
	s.logger.WithError(err).WithField("sink", s.config.Name).
		Error("Write failed; closing current file")
	s.closeCurrent()
	s.noteDropped(1)
	// a recuperação no próximo registro respeita o hold-off
	s.dir.usable = false
	s.lastSetupAttempt = time.Now()
}

func (s *FileSink) noteDropped(n int64) {
	s.droppedSinceLastSuccess += n
	s.stats.RecordsDropped += n
	metrics.FileDroppedTotal.WithLabelValues(s.config.Name).Add(float64(n))
}

func (s *FileSink) closeCurrent() {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	s.filePath = ""
	s.fileSize = 0
}
