package acquire

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/submitty/registrar-autofeed/pkg/configuration"
)

// jsonEnrollment is one record of the registrar's JSON export.
type jsonEnrollment struct {
	UserID        string `json:"user_id"`
	NumericID     string `json:"numeric_id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	PreferredName string `json:"preferred_name"`
	Email         string `json:"email"`
	CoursePrefix  string `json:"course_prefix"`
	CourseNumber  string `json:"course_number"`
	Section       string `json:"section"`
	Registration  string `json:"registration_status"`
	TermCode      string `json:"term_code"`
	CRN           string `json:"crn"`
	Credits       string `json:"credits"`
}

// JSONFetcher retrieves the registrar's JSON drops over SSH and
// flattens them into the single CSV the ingestor consumes.  The remote
// host key is pinned by SHA256 fingerprint; a mismatch aborts before
// authentication so credentials are never offered to an imposter.
type JSONFetcher struct {
	cfg *configuration.Configuration
}

func NewJSONFetcher(cfg *configuration.Configuration) *JSONFetcher {
	return &JSONFetcher{cfg: cfg}
}

func (f *JSONFetcher) Fetch() error {
	remote := f.cfg.Remote
	if remote.Hostname == "" || remote.Fingerprint == "" {
		return fmt.Errorf("JSON_REMOTE_HOSTNAME and JSON_REMOTE_FINGERPRINT are required")
	}

	client, err := f.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	files, err := f.listRemote(client)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no JSON files found under %s", remote.RemotePath)
	}

	var records []jsonEnrollment
	for _, file := range files {
		raw, err := f.run(client, fmt.Sprintf("/bin/cat %s", path.Join(remote.RemotePath, file)))
		if err != nil {
			return pkgerrors.Wrapf(err, "fetch %s", file)
		}
		// Keep the raw drop on disk when a local archive path is
		// configured, mirroring a plain scp of the remote directory.
		if remote.LocalPath != "" {
			if err := os.WriteFile(filepath.Join(remote.LocalPath, file), raw, 0o644); err != nil {
				return pkgerrors.Wrapf(err, "archive %s", file)
			}
		}
		var batch []jsonEnrollment
		if err := json.Unmarshal(raw, &batch); err != nil {
			return pkgerrors.Wrapf(err, "decode %s", file)
		}
		records = append(records, batch...)
	}

	return f.writeCSV(records)
}

func (f *JSONFetcher) connect() (*ssh.Client, error) {
	remote := f.cfg.Remote
	config := &ssh.ClientConfig{
		User: remote.Username,
		Auth: []ssh.AuthMethod{ssh.Password(remote.Password)},
		HostKeyCallback: func(hostname string, addr net.Addr, key ssh.PublicKey) error {
			actual := ssh.FingerprintSHA256(key)
			if actual != remote.Fingerprint {
				return fmt.Errorf("host key fingerprint mismatch: expected %s, got %s", remote.Fingerprint, actual)
			}
			return nil
		},
	}
	client, err := ssh.Dial("tcp", net.JoinHostPort(remote.Hostname, strconv.Itoa(remote.Port)), config)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "connect to %s", remote.Hostname)
	}
	return client, nil
}

func (f *JSONFetcher) listRemote(client *ssh.Client) ([]string, error) {
	out, err := f.run(client, fmt.Sprintf("/bin/ls %s", f.cfg.Remote.RemotePath))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list remote files")
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.HasSuffix(line, ".json") {
			files = append(files, line)
		}
	}
	sort.Strings(files)
	return files, nil
}

// run executes one remote command on its own session; ssh sessions are
// single-use.
func (f *JSONFetcher) run(client *ssh.Client, command string) ([]byte, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open session")
	}
	defer func() { _ = session.Close() }()

	var stdout bytes.Buffer
	session.Stdout = &stdout
	if err := session.Run(command); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// writeCSV lays the records out at the configured column positions so
// the result matches whatever column map the ingestor runs with.
func (f *JSONFetcher) writeCSV(records []jsonEnrollment) error {
	out, err := os.Create(f.cfg.Feed.CSVFile)
	if err != nil {
		return pkgerrors.Wrap(err, "create feed CSV")
	}

	w := csv.NewWriter(out)
	w.Comma = f.cfg.Feed.Comma()

	if f.cfg.Feed.HeaderRow {
		header := f.layoutRecord(jsonEnrollment{
			UserID: "user_id", NumericID: "numeric_id", FirstName: "first_name",
			LastName: "last_name", PreferredName: "preferred_name", Email: "email",
			CoursePrefix: "course_prefix", CourseNumber: "course_number",
			Section: "section", Registration: "registration_status",
			TermCode: "term_code", CRN: "crn", Credits: "credits",
		})
		if err := w.Write(header); err != nil {
			_ = out.Close()
			return pkgerrors.Wrap(err, "write header")
		}
	}
	for _, rec := range records {
		if err := w.Write(f.layoutRecord(rec)); err != nil {
			_ = out.Close()
			return pkgerrors.Wrap(err, "write record")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = out.Close()
		return pkgerrors.Wrap(err, "flush feed CSV")
	}
	return pkgerrors.Wrap(out.Close(), "close feed CSV")
}

func (f *JSONFetcher) layoutRecord(rec jsonEnrollment) []string {
	cols := f.cfg.Columns
	fields := make([]string, f.cfg.Feed.ExpectedColumns)
	set := func(idx int, value string) {
		if idx >= 0 && idx < len(fields) {
			fields[idx] = value
		}
	}
	set(cols.UserID, rec.UserID)
	set(cols.NumericID, rec.NumericID)
	set(cols.FirstName, rec.FirstName)
	set(cols.LastName, rec.LastName)
	set(cols.PreferredName, rec.PreferredName)
	set(cols.Email, rec.Email)
	set(cols.CoursePrefix, rec.CoursePrefix)
	set(cols.CourseNumber, rec.CourseNumber)
	set(cols.Section, rec.Section)
	set(cols.Registration, rec.Registration)
	set(cols.TermCode, rec.TermCode)
	set(cols.CRN, rec.CRN)
	set(cols.Credits, rec.Credits)
	return fields
}
