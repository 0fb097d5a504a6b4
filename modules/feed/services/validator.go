package services

import (
	"regexp"
	"strings"

	"github.com/submitty/registrar-autofeed/modules/feed/domain"
)

var (
	userIDRe  = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)
	nameRe    = regexp.MustCompile("^[a-zA-Z'`\\-. ]+$")
	sectionRe = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

	// Email parts.  RE2 has no lookaround, so the "local part may not
	// start or end with certain punctuation" rule is checked separately.
	emailLocalRe = regexp.MustCompile(`^[^(),:;<>@\\"\[\]]+$`)
	emailLabelRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?$`)
	emailTLDRe   = regexp.MustCompile(`^[a-zA-Z]{2,}$`)
)

const emailLocalEdgeChars = "!#$%'*+-/=?^_`{|"

// RowValidator applies the per-field format rules to a decoded row.
// Checks are independent; the first failing rule wins and is the one
// reported.  The validator has no side effects.
type RowValidator struct {
	expectedColumns int
}

func NewRowValidator(expectedColumns int) *RowValidator {
	return &RowValidator{expectedColumns: expectedColumns}
}

// ValidateRecord checks the raw field count of a decoded CSV record.
func (v *RowValidator) ValidateRecord(record []string, line int) error {
	if len(record) != v.expectedColumns {
		return &domain.SchemaError{Line: line, Got: len(record), Expected: v.expectedColumns}
	}
	return nil
}

// ValidateRow checks every field format rule on a parsed row.  A blank
// email passes here; the ingestor logs it separately.
func (v *RowValidator) ValidateRow(row domain.SourceRow) error {
	switch {
	case !userIDRe.MatchString(row.UserID):
		return &domain.FieldValidationError{Line: row.Line, Field: "user ID", Value: row.UserID}
	case !nameRe.MatchString(row.FirstName):
		return &domain.FieldValidationError{Line: row.Line, Field: "student first name", Value: row.FirstName}
	case !nameRe.MatchString(row.LastName):
		return &domain.FieldValidationError{Line: row.Line, Field: "student last name", Value: row.LastName}
	case !sectionRe.MatchString(row.Section):
		return &domain.FieldValidationError{Line: row.Line, Field: "student section", Value: row.Section}
	case row.Email != "" && !validEmail(row.Email):
		return &domain.FieldValidationError{Line: row.Line, Field: "student email", Value: row.Email}
	}
	return nil
}

// validEmail mirrors the registrar feed's address rules: the local part
// excludes (),:;<>@"[] and cannot start or end with certain
// punctuation; the host is dot-separated alphanumeric/hyphen labels
// with no edge hyphens and an all-alphabetic TLD of length >= 2.
func validEmail(addr string) bool {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return false
	}
	local, host := addr[:at], addr[at+1:]

	if !emailLocalRe.MatchString(local) {
		return false
	}
	if strings.ContainsRune(emailLocalEdgeChars, rune(local[0])) ||
		strings.ContainsRune(emailLocalEdgeChars, rune(local[len(local)-1])) {
		return false
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels[:len(labels)-1] {
		if !emailLabelRe.MatchString(label) {
			return false
		}
	}
	return emailTLDRe.MatchString(labels[len(labels)-1])
}
