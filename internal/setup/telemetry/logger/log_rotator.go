package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Rotator wraps an io.Writer and caps the file at a fixed number of lines,
// rewriting it in place once twice the cap has passed through.
type Rotator struct {
	writer   io.Writer
	recent   *lineRing
	filePath string
	mutex    sync.Mutex
}

// NewRotator creates a new Rotator keeping at most maxLines lines.
func NewRotator(writer io.Writer, maxLines int, filePath string) *Rotator {
	return &Rotator{
		writer:   writer,
		recent:   newLineRing(maxLines),
		filePath: filePath,
	}
}

// Write implements io.Writer and maintains the line buffer.
func (w *Rotator) Write(p []byte) (n int, err error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	n, err = w.writer.Write(p)
	if err != nil {
		return n, err
	}

	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}

		w.recent.add(line)

		if w.recent.totalSeen == w.recent.capacity*2 {
			if err := w.rotate(); err != nil {
				return n, fmt.Errorf("failed to rotate log file: %w", err)
			}

			w.recent.totalSeen = w.recent.size
		}
	}

	return n, nil
}

// rotate rewrites the file with only the retained lines and reopens it.
func (w *Rotator) rotate() error {
	lines := w.recent.ordered()
	if len(lines) == 0 {
		return nil
	}

	temp, err := os.CreateTemp(filepath.Dir(w.filePath), "temp-log-")
	if err != nil {
		return err
	}

	tempPath := temp.Name()

	if _, err := temp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	if err := temp.Sync(); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	temp.Close()

	if closer, ok := w.writer.(io.Closer); ok {
		closer.Close()
	}

	// Windows cannot rename over an open file.
	os.Remove(w.filePath)

	if err := os.Rename(tempPath, w.filePath); err != nil {
		return err
	}

	newFile, err := os.OpenFile(w.filePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	w.writer = newFile

	return nil
}
