package logcollection

import (
	"bytes"
	"strings"
	"sync"

	"github.com/core-tools/hsu-launch-go/pkg/logging"
)

type StreamType string

const (
	StreamStdout StreamType = "stdout"
	StreamStderr StreamType = "stderr"
)

// DefaultMaxLineLength bounds buffered output of a process that never writes a newline
const DefaultMaxLineLength = 64 * 1024

// LineWriter turns a managed process output stream into one log entry per line.
// Stdout lines log at info, stderr lines at warn.
type LineWriter struct {
	processID     string
	streamType    StreamType
	logger        logging.Logger
	maxLineLength int

	buf    []byte
	closed bool
	mutex  sync.Mutex
}

func NewLineWriter(processID string, streamType StreamType, logger logging.Logger) *LineWriter {
	return &LineWriter{
		processID:     processID,
		streamType:    streamType,
		logger:        logger,
		maxLineLength: DefaultMaxLineLength,
	}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}

	if len(w.buf) >= w.maxLineLength {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

// Close flushes a trailing partial line
func (w *LineWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *LineWriter) emit(line []byte) {
	text := strings.TrimRight(string(line), "\r")
	if w.streamType == StreamStderr {
		w.logger.Warnf("[%s:%s] %s", w.processID, w.streamType, text)
		return
	}
	w.logger.Infof("[%s:%s] %s", w.processID, w.streamType, text)
}
