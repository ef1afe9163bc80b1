package adapter

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ianlancetaylor/demangle"

	m "funcov.dev/pkg/funcov/internal/model"
)

// Call lines as the tracer plugin writes them. The [At:...] suffix is
// optional for plugins that do not timestamp.
var callLineRx = regexp.MustCompile(`^\[PID:(\d+)\] \[Image:(.+?)\] \[Called:(.+?)\](?: \[At:(\d+)\])?$`)

// ParseTrace decodes the engine's raw event stream into sink. Only events
// whose image matches one of images count; calls observed in shared
// libraries loaded into the same process are outside the measured universe.
// The plugin's informational lines are ignored; anything else that does not
// parse is counted and dropped, never fatal.
func ParseTrace(r io.Reader, sink func(m.CallEvent) error, images ...string) (int, error) {
	accepted := make(map[string]struct{}, len(images))

	for _, image := range images {
		if image != "" {
			accepted[image] = struct{}{}
		}
	}

	skipped := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isTraceNoise(line) {
			continue
		}

		match := callLineRx.FindStringSubmatch(line)
		if match == nil {
			skipped++
			continue
		}

		if _, ok := accepted[match[2]]; !ok {
			continue
		}

		if err := sink(newCallEvent(match[3], match[4])); err != nil {
			return skipped, fmt.Errorf("failed to record call event: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return skipped, fmt.Errorf("failed to read trace: %w", err)
	}

	if skipped > 0 {
		slog.Warn("dropped unparsable trace lines", "count", skipped)
	}

	return skipped, nil
}

// ParseTraceFile opens and parses an on-disk trace stream.
func ParseTraceFile(path m.Path, sink func(m.CallEvent) error, images ...string) (int, error) {
	file, err := os.Open(string(path))
	if err != nil {
		return 0, fmt.Errorf("failed to open trace %s: %w", path, err)
	}

	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("failed to close trace", "path", path, "error", err)
		}
	}()

	return ParseTrace(file, sink, images...)
}

// newCallEvent keeps raw addresses as addresses and demangles names, so the
// aggregator sees the same spelling the symbol extractor produced.
func newCallEvent(callee, nanos string) m.CallEvent {
	var event m.CallEvent

	if strings.HasPrefix(callee, "0x") {
		if addr, err := strconv.ParseUint(callee[2:], 16, 64); err == nil {
			event.Addr = addr
		}
	} else {
		event.Name = demangle.Filter(callee)
	}

	if nanos != "" {
		if offset, err := strconv.ParseInt(nanos, 10, 64); err == nil {
			event.Offset = time.Duration(offset)
		}
	}

	return event
}

// isTraceNoise recognizes the plugin's startup chatter: image and symbol
// inventories plus skip notices for images it chose not to instrument.
func isTraceNoise(line string) bool {
	if strings.Contains(line, "] [Function:") || strings.Contains(line, "] [Section:") {
		return true
	}

	return strings.HasSuffix(line, "is not relevant, skipping instrumentation")
}
