// Package report produces the add/drop census the sysadmins read after
// each feed run.  It runs in two passes bracketing the feed: pass 1
// caches per-course enrollment counts, pass 2 re-counts, compiles the
// before/after table, writes it to disk and optionally emails it.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/submitty/registrar-autofeed/pkg/configuration"
	"github.com/submitty/registrar-autofeed/pkg/feedlog"
)

type Service struct {
	cfg    *configuration.Configuration
	repo   *Repository
	logger *logrus.Logger
	now    func() time.Time
}

func NewService(cfg *configuration.Configuration, repo *Repository, logger *logrus.Logger) *Service {
	return &Service{cfg: cfg, repo: repo, logger: logger, now: time.Now}
}

// PassOne caches the pre-feed enrollment counts to the cache CSV.
func (s *Service) PassOne(ctx context.Context, term string) error {
	snap, err := s.repo.TakeSnapshot(ctx, term)
	if err != nil {
		return err
	}
	return writeCache(s.cfg.Report.CacheFile, snap.Enrollments)
}

// PassTwo re-counts after the feed, compares against the pass-1 cache
// and delivers the report.  The cache file is consumed.
func (s *Service) PassTwo(ctx context.Context, term string) error {
	snap, err := s.repo.TakeSnapshot(ctx, term)
	if err != nil {
		return err
	}
	previous, err := readCache(s.cfg.Report.CacheFile)
	if err != nil {
		return err
	}

	body := Compile(s.now(), previous, snap)

	if to := s.cfg.ErrorEmail; to != "" {
		subject := fmt.Sprintf("Submitty Autofeed Add/Drop Report For %s", s.now().Format("Jan 2, 2006"))
		if err := feedlog.SendMail(s.cfg.SMTPAddr, s.cfg.MailFrom, to, subject, body); err != nil {
			s.logger.WithError(err).Error("add/drop report could not be emailed")
		}
	}

	outDir := filepath.Join(s.cfg.Report.OutDir, term)
	if err := os.MkdirAll(outDir, 0o770); err != nil {
		return pkgerrors.Wrap(err, "create report directory")
	}
	outFile := filepath.Join(outDir, fmt.Sprintf("report_%s.txt", s.now().Format("2006-01-02")))
	return pkgerrors.Wrap(os.WriteFile(outFile, []byte(body), 0o660), "write report")
}

// Compile renders the before/after table.  Difference and ratio do not
// subtract the manual count; the MANUAL column exists so a reader can
// discount it by eye.
func Compile(now time.Time, previous map[string]int, snap *Snapshot) string {
	courses := make([]string, 0, len(snap.Enrollments))
	for course := range snap.Enrollments {
		courses = append(courses, course)
	}
	sort.Strings(courses)

	body := fmt.Sprintf("Student autofeed counts report for %s at %s\n", now.Format("January 2, 2006"), now.Format("3:04 PM"))
	body += "NOTE: Difference and ratio do not account for the manual flag.\n"
	body += "COURSE        YESTERDAY  TODAY  MANUAL  DIFFERENCE    RATIO\n"

	for _, course := range courses {
		today := snap.Enrollments[course]
		yesterday := previous[course]
		diff := today - yesterday
		ratio := "N/A"
		if yesterday != 0 {
			ratio = strconv.FormatFloat(math.Abs(math.Round(float64(diff)/float64(yesterday)*1000)/1000), 'g', -1, 64)
		}
		body += fmt.Sprintf("%-18s%5d  %5d  %6d  %10d    %s\n",
			course, yesterday, today, snap.ManualFlags[course], diff, ratio)
	}
	return body
}

func writeCache(path string, enrollments map[string]int) error {
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.Wrap(err, "create enrollment cache")
	}

	courses := make([]string, 0, len(enrollments))
	for course := range enrollments {
		courses = append(courses, course)
	}
	sort.Strings(courses)

	w := csv.NewWriter(f)
	for _, course := range courses {
		if err := w.Write([]string{course, strconv.Itoa(enrollments[course])}); err != nil {
			_ = f.Close()
			return pkgerrors.Wrap(err, "write enrollment cache")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return pkgerrors.Wrap(err, "flush enrollment cache")
	}
	return pkgerrors.Wrap(f.Close(), "close enrollment cache")
}

func readCache(path string) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open enrollment cache (was pass 1 run?)")
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(path)
	}()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	rows, err := r.ReadAll()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read enrollment cache")
	}

	previous := make(map[string]int, len(rows))
	for _, row := range rows {
		count, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "bad cached count for %s", row[0])
		}
		previous[row[0]] = count
	}
	return previous, nil
}
