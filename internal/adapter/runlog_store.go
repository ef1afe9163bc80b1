package adapter

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	m "funcov.dev/pkg/funcov/internal/model"
	"funcov.dev/pkg/funcov/pkg"
)

const (
	runLogVersion = 1
	runLogMagic   = "funcov-runlog"

	runLogPrefix    = "run_"
	runLogExtension = ".log"
)

// RunLogStore persists one run log per execution and reads them back for
// aggregation. The format is line oriented and self-contained; logs from
// different binaries can share a directory.
type RunLogStore interface {
	// Write persists log into dir using the events held in memory.
	// The log becomes visible under its final name only once complete.
	Write(dir m.Path, log m.RunLog) (m.Path, error)

	// WriteSpooled persists log taking call events from events, so an
	// arbitrarily long trace never has to fit in memory.
	WriteSpooled(dir m.Path, log m.RunLog, events pkg.FileSpill[m.CallEvent]) (m.Path, error)

	// List returns the run logs in dir sorted by file name.
	List(dir m.Path) ([]m.Path, error)

	// Read decodes one run log. Structurally broken files yield
	// ErrCorruptLog; broken event lines are skipped and counted.
	Read(path m.Path) (m.RunLog, error)
}

// LocalRunLogStore is the filesystem-backed RunLogStore.
type LocalRunLogStore struct{}

// NewLocalRunLogStore creates a new LocalRunLogStore.
func NewLocalRunLogStore() *LocalRunLogStore {
	return &LocalRunLogStore{}
}

// Write implements RunLogStore.
func (s *LocalRunLogStore) Write(dir m.Path, log m.RunLog) (m.Path, error) {
	return s.persist(dir, log, func(emit func(m.CallEvent) error) error {
		for _, event := range log.Events {
			if err := emit(event); err != nil {
				return err
			}
		}

		return nil
	})
}

// WriteSpooled implements RunLogStore.
func (s *LocalRunLogStore) WriteSpooled(dir m.Path, log m.RunLog, events pkg.FileSpill[m.CallEvent]) (m.Path, error) {
	return s.persist(dir, log, func(emit func(m.CallEvent) error) error {
		return events.Range(func(_ uint64, event m.CallEvent) error {
			return emit(event)
		})
	})
}

func (s *LocalRunLogStore) persist(dir m.Path, log m.RunLog, each func(func(m.CallEvent) error) error) (m.Path, error) {
	if err := os.MkdirAll(string(dir), 0o755); err != nil {
		slog.Error("failed to create log directory", "dir", dir, "error", err)
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(string(dir), ".runlog-*")
	if err != nil {
		slog.Error("failed to create run log", "dir", dir, "error", err)
		return "", fmt.Errorf("failed to create run log in %s: %w", dir, err)
	}

	tmpPath := tmp.Name()
	committed := false

	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	writer := bufio.NewWriter(tmp)
	fmt.Fprintf(writer, "%s %d\n", runLogMagic, runLogVersion)
	fmt.Fprintf(writer, "target %s\n", log.Identity.Target)
	fmt.Fprintf(writer, "digest %s\n", log.Identity.Digest)
	fmt.Fprintf(writer, "pid %d\n", log.PID)
	fmt.Fprintf(writer, "started %d\n", log.Started.UnixNano())

	for _, name := range log.Symbols.Ignored {
		fmt.Fprintf(writer, "dup %s\n", name)
	}

	// Names go last on sym and call lines: demangled names contain
	// spaces, the leading fields never do.
	for _, sym := range log.Symbols.Symbols {
		fmt.Fprintf(writer, "sym %x %x %s\n", sym.Start, sym.End, sym.Name)
	}

	if err := each(func(event m.CallEvent) error {
		_, err := fmt.Fprintf(writer, "call %d %s\n", event.Offset.Nanoseconds(), calleeField(event))
		return err
	}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write call events: %w", err)
	}

	fmt.Fprintf(writer, "exit %d skipped %d\n", log.ExitCode, log.SkippedEvents)

	if err := writer.Flush(); err != nil {
		tmp.Close()
		slog.Error("failed to flush run log", "path", tmpPath, "error", err)
		return "", fmt.Errorf("failed to write run log: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close run log: %w", err)
	}

	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", fmt.Errorf("failed to chmod run log: %w", err)
	}

	final := filepath.Join(string(dir), runLogName(log))
	if err := os.Rename(tmpPath, final); err != nil {
		slog.Error("failed to publish run log", "path", final, "error", err)
		return "", fmt.Errorf("failed to publish run log %s: %w", final, err)
	}

	committed = true
	slog.Debug("wrote run log", "path", final, "target", log.Identity.Target, "pid", log.PID)

	return m.Path(final), nil
}

func calleeField(event m.CallEvent) string {
	if event.Name != "" {
		return event.Name
	}

	return fmt.Sprintf("0x%x", event.Addr)
}

// runLogName is unique per run: the engine PID plus the start timestamp in
// nanoseconds. Rewriting the same run yields the same name, which makes
// merges idempotent.
func runLogName(log m.RunLog) string {
	return fmt.Sprintf("%s%d_%d%s", runLogPrefix, log.PID, log.Started.UnixNano(), runLogExtension)
}

// List implements RunLogStore.
func (s *LocalRunLogStore) List(dir m.Path) ([]m.Path, error) {
	entries, err := os.ReadDir(string(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("log directory %s: %w", dir, m.ErrNotFound)
		}

		slog.Error("failed to read log directory", "dir", dir, "error", err)

		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var paths []m.Path

	// ReadDir sorts by name, so aggregation folds logs in a stable order.
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasPrefix(name, runLogPrefix) && strings.HasSuffix(name, runLogExtension) {
			paths = append(paths, m.Path(filepath.Join(string(dir), name)))
		}
	}

	return paths, nil
}

// Read implements RunLogStore.
func (s *LocalRunLogStore) Read(path m.Path) (m.RunLog, error) {
	file, err := os.Open(string(path))
	if err != nil {
		return m.RunLog{}, fmt.Errorf("failed to open run log %s: %w", path, err)
	}

	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("failed to close run log", "path", path, "error", err)
		}
	}()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return m.RunLog{}, fmt.Errorf("%w: %s is empty", m.ErrCorruptLog, path)
	}

	version, err := parseRunLogVersion(scanner.Text())
	if err != nil {
		return m.RunLog{}, fmt.Errorf("%w: %s: %v", m.ErrCorruptLog, path, err)
	}

	log := m.RunLog{FormatVersion: version}

	for scanner.Scan() {
		s.parseLine(scanner.Text(), &log)
	}

	if err := scanner.Err(); err != nil {
		return m.RunLog{}, fmt.Errorf("%w: failed to read %s: %v", m.ErrCorruptLog, path, err)
	}

	if log.Identity.Target == "" || log.Identity.Digest == "" {
		return m.RunLog{}, fmt.Errorf("%w: %s lacks a binary identity", m.ErrCorruptLog, path)
	}

	return log, nil
}

func parseRunLogVersion(line string) (int, error) {
	rest, ok := strings.CutPrefix(line, runLogMagic+" ")
	if !ok {
		return 0, fmt.Errorf("unrecognized header %q", line)
	}

	version, err := strconv.Atoi(rest)
	if err != nil || version < 1 {
		return 0, fmt.Errorf("bad version %q", rest)
	}

	if version > runLogVersion {
		return 0, fmt.Errorf("version %d is newer than this build", version)
	}

	return version, nil
}

// parseLine decodes one body line. Lines that do not decode are counted and
// dropped; a partially written log still contributes its readable events.
func (s *LocalRunLogStore) parseLine(line string, log *m.RunLog) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}

	key, rest, _ := strings.Cut(line, " ")

	ok := false

	switch key {
	case "target":
		log.Identity.Target = m.Path(rest)
		ok = rest != ""
	case "digest":
		log.Identity.Digest = rest
		ok = rest != ""
	case "pid":
		pid, err := strconv.Atoi(rest)
		if err == nil {
			log.PID = pid
			ok = true
		}
	case "started":
		nanos, err := strconv.ParseInt(rest, 10, 64)
		if err == nil {
			log.Started = time.Unix(0, nanos)
			ok = true
		}
	case "dup":
		log.Symbols.Ignored = append(log.Symbols.Ignored, rest)
		ok = rest != ""
	case "sym":
		ok = parseSymLine(rest, log)
	case "call":
		ok = parseCallLine(rest, log)
	case "exit":
		ok = parseExitLine(rest, log)
	}

	if !ok {
		log.SkippedEvents++
	}
}

func parseSymLine(rest string, log *m.RunLog) bool {
	fields := strings.SplitN(rest, " ", 3)
	if len(fields) != 3 || fields[2] == "" {
		return false
	}

	start, err := strconv.ParseUint(fields[0], 16, 64)
	if err != nil {
		return false
	}

	end, err := strconv.ParseUint(fields[1], 16, 64)
	if err != nil {
		return false
	}

	log.Symbols.Symbols = append(log.Symbols.Symbols, m.Symbol{Name: fields[2], Start: start, End: end})

	return true
}

func parseCallLine(rest string, log *m.RunLog) bool {
	offsetField, callee, found := strings.Cut(rest, " ")
	if !found || callee == "" {
		return false
	}

	nanos, err := strconv.ParseInt(offsetField, 10, 64)
	if err != nil {
		return false
	}

	event := m.CallEvent{Offset: time.Duration(nanos)}

	if strings.HasPrefix(callee, "0x") {
		addr, err := strconv.ParseUint(callee[2:], 16, 64)
		if err != nil {
			return false
		}

		event.Addr = addr
	} else {
		event.Name = callee
	}

	log.Events = append(log.Events, event)

	return true
}

func parseExitLine(rest string, log *m.RunLog) bool {
	var code, skipped int
	if _, err := fmt.Sscanf(rest, "%d skipped %d", &code, &skipped); err != nil {
		return false
	}

	log.ExitCode = code
	log.SkippedEvents += skipped

	return true
}
