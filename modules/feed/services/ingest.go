package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"golang.org/x/text/encoding/charmap"

	"github.com/submitty/registrar-autofeed/modules/feed/domain"
	"github.com/submitty/registrar-autofeed/pkg/configuration"
	"github.com/submitty/registrar-autofeed/pkg/feedlog"
)

// Ingestor streams the registrar export, applies per-row filtering,
// validation and mapping, and groups surviving rows per destination
// course.  It is single-use per run.
type Ingestor struct {
	cfg       *configuration.Configuration
	validator *RowValidator
	mapper    *CourseMapper
	rcos      *RCOSOverride
	log       *feedlog.Queue
}

func NewIngestor(cfg *configuration.Configuration, validator *RowValidator, mapper *CourseMapper, rcos *RCOSOverride, log *feedlog.Queue) *Ingestor {
	return &Ingestor{
		cfg:       cfg,
		validator: validator,
		mapper:    mapper,
		rcos:      rcos,
		log:       log,
	}
}

// OpenLocked opens the source file and takes a non-blocking shared
// advisory lock, so a half-written upload is never read.  A held lock
// surfaces as domain.ErrWouldBlock, distinct from any other flock
// failure; both are fatal to the run and retry policy belongs to the
// external scheduler.
func OpenLocked(path string, minSize int64) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open source file")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, domain.ErrWouldBlock
		}
		return nil, pkgerrors.Wrap(err, "lock source file")
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, pkgerrors.Wrap(err, "stat source file")
	}
	if info.Size() < minSize {
		_ = f.Close()
		return nil, fmt.Errorf("source file is %d bytes, minimum %d: refusing suspiciously small feed", info.Size(), minSize)
	}
	return f, nil
}

// IngestFile locks, streams and releases the source file.  The file
// handle is closed (releasing the shared lock) before returning, so the
// slow database phase never holds the upload lock.
func (ing *Ingestor) IngestFile(path string) (map[string]*domain.CourseRows, error) {
	f, err := OpenLocked(path, ing.cfg.Feed.MinFileSize)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ing.Ingest(f)
}

// Ingest consumes the full stream and returns rows grouped by
// destination course.  Courses that ended with zero rows are removed so
// the reconciler never interprets an absent course as a mass drop.
func (ing *Ingestor) Ingest(r io.Reader) (map[string]*domain.CourseRows, error) {
	if ing.cfg.Feed.ConvertCP1252 {
		r = charmap.Windows1252.NewDecoder().Reader(r)
	}

	cr := csv.NewReader(r)
	cr.Comma = ing.cfg.Feed.Comma()
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	courses := make(map[string]*domain.CourseRows)
	line := 0
	sawData := false

	if ing.cfg.Feed.HeaderRow {
		line++
		if _, err := cr.Read(); err != nil && err != io.EOF {
			return nil, pkgerrors.Wrap(err, "read header row")
		}
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pkgerrors.Wrap(err, "read source row")
		}
		line++

		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}

		if allEmpty(record) {
			// Some registrar dumps pad the top of the file with empty
			// rows; below real data an empty row means truncated output.
			if sawData {
				ing.log.Logf("Row %d is empty below a data row; discarded.", line)
			}
			continue
		}
		sawData = true

		if err := ing.validator.ValidateRecord(record, line); err != nil {
			ing.log.Logf("%s", err.Error())
			ing.invalidateRecordCourse(courses, record)
			continue
		}

		row := ing.parseRow(record, line)
		ing.processRow(courses, row)
	}

	for course, bucket := range courses {
		if len(bucket.Rows) == 0 && !bucket.Invalid {
			delete(courses, course)
		}
	}
	return courses, nil
}

// parseRow is the single place raw records are indexed by column
// position; everything downstream works with the named structure.
func (ing *Ingestor) parseRow(record []string, line int) domain.SourceRow {
	cols := ing.cfg.Columns
	get := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return record[idx]
	}
	row := domain.SourceRow{
		Line:          line,
		UserID:        get(cols.UserID),
		NumericID:     get(cols.NumericID),
		FirstName:     get(cols.FirstName),
		LastName:      get(cols.LastName),
		PreferredName: get(cols.PreferredName),
		Email:         get(cols.Email),
		CoursePrefix:  get(cols.CoursePrefix),
		CourseNumber:  get(cols.CourseNumber),
		Section:       stripLeadingZeros(get(cols.Section)),
		Registration:  get(cols.Registration),
		TermCode:      get(cols.TermCode),
		CRN:           get(cols.CRN),
		Credits:       get(cols.Credits),
	}
	row.Type = ing.classify(row.Registration)
	return row
}

// processRow applies the disposition order from the feed contract:
// status filter, term check, then native and/or mapped accumulation.
func (ing *Ingestor) processRow(courses map[string]*domain.CourseRows, row domain.SourceRow) {
	if !ing.registrationTracked(row.Registration) {
		return
	}

	if expected := ing.cfg.Feed.ExpectedTermCode; expected != "" && row.TermCode != expected {
		ing.log.Logf("Row %d has unexpected term code %q (expected %q); discarded.", row.Line, row.TermCode, expected)
		return
	}

	course := row.Course()
	isNative := ing.mapper.IsNative(course)
	mappedTarget, hasMappedSection := ing.mapper.ResolveMapped(course, row.Section)
	if !isNative && !ing.mapper.HasMapping(course) {
		return
	}

	if err := ing.validator.ValidateRow(row); err != nil {
		ing.log.Logf("%s", err.Error())
		if isNative {
			ing.invalidate(courses, course)
		}
		if hasMappedSection {
			ing.invalidate(courses, mappedTarget.Course)
		}
		return
	}

	if row.Email == "" {
		ing.log.Logf("Row %d has blank email for user %q.", row.Line, row.UserID)
	}

	// A row can belong to a native course AND have a section mapped
	// elsewhere; both destinations receive it.
	if isNative {
		native := row
		ing.rcos.Apply(&native)
		ing.accumulate(courses, course, native)
	}

	if ing.mapper.HasMapping(course) {
		if hasMappedSection {
			mapped := row
			mapped.Section = mappedTarget.Section
			ing.accumulate(courses, mappedTarget.Course, mapped)
		} else if !isNative {
			ing.log.Logf("Row %d: course %s is mapped but section %q has no mapping entry; discarded.", row.Line, course, row.Section)
		}
	}

	for _, target := range ing.mapper.ResolveCopies(course, row.Section) {
		dup := row
		dup.Section = target.Section
		dup.CRN = ""
		ing.accumulate(courses, target.Course, dup)
	}
}

func (ing *Ingestor) accumulate(courses map[string]*domain.CourseRows, course string, row domain.SourceRow) {
	bucket := courses[course]
	if bucket == nil {
		bucket = &domain.CourseRows{Course: course}
		courses[course] = bucket
	}
	bucket.Rows = append(bucket.Rows, row)
}

func (ing *Ingestor) invalidate(courses map[string]*domain.CourseRows, course string) {
	bucket := courses[course]
	if bucket == nil {
		bucket = &domain.CourseRows{Course: course}
		courses[course] = bucket
	}
	if !bucket.Invalid {
		bucket.Invalid = true
		ing.log.Logf("Course %s is excluded from this run due to invalid feed data.", course)
	}
}

// invalidateRecordCourse is the best effort for schema errors: if the
// malformed record still carries recognizable course columns, that
// destination is excluded from the run.
func (ing *Ingestor) invalidateRecordCourse(courses map[string]*domain.CourseRows, record []string) {
	cols := ing.cfg.Columns
	if cols.CoursePrefix >= len(record) || cols.CourseNumber >= len(record) {
		return
	}
	course := strings.ToLower(record[cols.CoursePrefix]) + record[cols.CourseNumber]
	if ing.mapper.IsNative(course) {
		ing.invalidate(courses, course)
	}
	if target, ok := ing.mapper.ResolveMapped(course, get(record, cols.Section)); ok {
		ing.invalidate(courses, target.Course)
	}
}

func (ing *Ingestor) registrationTracked(code string) bool {
	return containsCode(ing.cfg.Feed.RegisteredCodes, code) ||
		containsCode(ing.cfg.Feed.AuditCodes, code) ||
		containsCode(ing.cfg.Feed.LateDropCodes, code)
}

func (ing *Ingestor) classify(code string) domain.RegistrationType {
	switch {
	case containsCode(ing.cfg.Feed.RegisteredCodes, code):
		return domain.RegistrationGraded
	case containsCode(ing.cfg.Feed.AuditCodes, code):
		return domain.RegistrationAudit
	default:
		return domain.RegistrationWithdrawn
	}
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func allEmpty(record []string) bool {
	for _, field := range record {
		if field != "" {
			return false
		}
	}
	return true
}

// stripLeadingZeros normalizes integer-looking section identifiers so
// "01" and "1" land in the same registration section.
func stripLeadingZeros(section string) string {
	if section == "" {
		return section
	}
	for _, r := range section {
		if r < '0' || r > '9' {
			return section
		}
	}
	trimmed := strings.TrimLeft(section, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

func get(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}
