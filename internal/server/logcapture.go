package server

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"harness/pkg/logging"
)

// maxCapturedLines bounds the tail kept per stream.
const maxCapturedLines = 200

// logCapture forwards the server's stdout and stderr to the debug log and
// keeps the most recent lines for error reports.
type logCapture struct {
	stdoutReader *io.PipeReader
	stderrReader *io.PipeReader
	stdoutWriter *io.PipeWriter
	stderrWriter *io.PipeWriter
	wg           sync.WaitGroup

	mu     sync.RWMutex
	stdout []string
	stderr []string
}

func newLogCapture(id string) *logCapture {
	lc := &logCapture{}
	lc.stdoutReader, lc.stdoutWriter = io.Pipe()
	lc.stderrReader, lc.stderrWriter = io.Pipe()

	lc.wg.Add(2)
	go lc.captureOutput(lc.stdoutReader, &lc.stdout, id, "stdout")
	go lc.captureOutput(lc.stderrReader, &lc.stderr, id, "stderr")
	return lc
}

func (lc *logCapture) captureOutput(reader io.Reader, lines *[]string, id, stream string) {
	defer lc.wg.Done()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		logging.Debug("Server", "[%s %s] %s", id, stream, line)

		lc.mu.Lock()
		*lines = append(*lines, line)
		if len(*lines) > maxCapturedLines {
			*lines = (*lines)[len(*lines)-maxCapturedLines:]
		}
		lc.mu.Unlock()
	}
	// drain so the child never blocks on a full pipe
	_, _ = io.Copy(io.Discard, reader)
}

func (lc *logCapture) close() {
	lc.stdoutWriter.Close()
	lc.stderrWriter.Close()
	lc.wg.Wait()
}

// tail returns the last n captured lines of both streams.
func (lc *logCapture) tail(n int) string {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	var b strings.Builder
	write := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		if len(lines) > n {
			lines = lines[len(lines)-n:]
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("=== " + title + " ===\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	write("STDOUT", lc.stdout)
	write("STDERR", lc.stderr)
	return b.String()
}
