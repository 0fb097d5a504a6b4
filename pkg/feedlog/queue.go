// Package feedlog accumulates the run report in memory and flushes it
// once at shutdown, so each scheduled run produces a single coherent
// log entry instead of interleaved partial writes.
package feedlog

import (
	"fmt"
	"net/smtp"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Queue struct {
	mu      sync.Mutex
	runID   uuid.UUID
	started time.Time
	lines   []string
	logger  *logrus.Logger
}

func NewQueue(logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	return &Queue{
		runID:   uuid.New(),
		started: time.Now(),
		logger:  logger,
	}
}

func (q *Queue) RunID() uuid.UUID { return q.runID }

// Logf appends a timestamped message to the run report and mirrors it
// to the console logger.
func (q *Queue) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if msg == "" {
		return
	}
	q.mu.Lock()
	q.lines = append(q.lines, time.Now().Format("01/02/06 15:04:05")+" : "+msg)
	q.mu.Unlock()
	q.logger.Warn(msg)
}

// Empty reports whether any message was queued during the run.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines) == 0
}

func (q *Queue) render(term string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Student auto feed run %s (term %s) started %s\n",
		q.runID, term, q.started.Format(time.RFC1123))
	for _, line := range q.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// FlushOptions controls where the run report goes.  Email is skipped
// when Email is empty.
type FlushOptions struct {
	Term     string
	LogFile  string
	Email    string
	SMTPAddr string
	From     string
}

// Flush writes the queued report to the error log file and optionally
// emails it.  Flush is a no-op when nothing was queued.
func (q *Queue) Flush(opts FlushOptions) error {
	q.mu.Lock()
	n := len(q.lines)
	q.mu.Unlock()
	if n == 0 {
		return nil
	}

	body := q.render(opts.Term)

	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open error log: %w", err)
		}
		_, werr := f.WriteString(body)
		cerr := f.Close()
		if werr != nil {
			return fmt.Errorf("write error log: %w", werr)
		}
		if cerr != nil {
			return cerr
		}
	}

	if opts.Email != "" {
		if err := q.mail(opts, body); err != nil {
			// A broken mail relay must not fail the run after the report
			// reached the log file.
			q.logger.WithError(err).Error("could not email run report")
		}
	}
	return nil
}

func (q *Queue) mail(opts FlushOptions, body string) error {
	subject := fmt.Sprintf("Student auto feed report (%s)", opts.Term)
	return SendMail(opts.SMTPAddr, opts.From, opts.Email, subject, body)
}

// SendMail delivers one plain-text message through the configured SMTP
// relay, unauthenticated.
func SendMail(smtpAddr, from, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		from, to, subject, strings.ReplaceAll(body, "\n", "\r\n"))
	return smtp.SendMail(smtpAddr, nil, from, []string{to}, []byte(msg))
}
