package feedlog

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestQueueAccumulatesTimestampedLines(t *testing.T) {
	q := NewQueue(quietLogger())
	require.True(t, q.Empty())

	q.Logf("row %d failed validation", 7)
	q.Logf("")
	require.False(t, q.Empty())

	body := q.render("f24")
	require.Contains(t, body, q.RunID().String())
	require.Contains(t, body, "term f24")
	require.Contains(t, body, " : row 7 failed validation")
}

func TestFlushAppendsToLogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "auto_feed_error.log")

	q := NewQueue(quietLogger())
	q.Logf("first run message")
	require.NoError(t, q.Flush(FlushOptions{Term: "f24", LogFile: logFile}))

	q2 := NewQueue(quietLogger())
	q2.Logf("second run message")
	require.NoError(t, q2.Flush(FlushOptions{Term: "f24", LogFile: logFile}))

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "first run message")
	require.Contains(t, string(data), "second run message")
}

func TestFlushEmptyQueueIsNoOp(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "auto_feed_error.log")

	q := NewQueue(quietLogger())
	require.NoError(t, q.Flush(FlushOptions{Term: "f24", LogFile: logFile}))

	_, err := os.Stat(logFile)
	require.True(t, os.IsNotExist(err))
}
