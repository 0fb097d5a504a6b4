package configuration

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadEnv loads whichever of the given .env files exist.  Returns how
// many files were loaded.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"submitty"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"require"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.Password, d.SSLMode,
	)
}

// ColumnMap holds the zero-based positions of each field in the
// registrar's delimited export.  CRN and Credits are optional and
// disabled with -1.
type ColumnMap struct {
	CoursePrefix  int `env:"COLUMN_COURSE_PREFIX" envDefault:"8"`
	CourseNumber  int `env:"COLUMN_COURSE_NUMBER" envDefault:"9"`
	Registration  int `env:"COLUMN_REGISTRATION" envDefault:"7"`
	Section       int `env:"COLUMN_SECTION" envDefault:"10"`
	UserID        int `env:"COLUMN_USER_ID" envDefault:"5"`
	NumericID     int `env:"COLUMN_NUMERIC_ID" envDefault:"6"`
	FirstName     int `env:"COLUMN_FIRSTNAME" envDefault:"2"`
	LastName      int `env:"COLUMN_LASTNAME" envDefault:"1"`
	PreferredName int `env:"COLUMN_PREFERREDNAME" envDefault:"3"`
	Email         int `env:"COLUMN_EMAIL" envDefault:"4"`
	TermCode      int `env:"COLUMN_TERM_CODE" envDefault:"11"`
	CRN           int `env:"COLUMN_CRN" envDefault:"-1"`
	Credits       int `env:"COLUMN_CREDITS" envDefault:"-1"`
}

type FeedOptions struct {
	CSVFile string `env:"CSV_FILE"`
	// Delim is the field delimiter: "tab", "comma", or a single literal
	// character.
	Delim           string `env:"CSV_DELIM_CHAR" envDefault:"tab"`
	ExpectedColumns int    `env:"VALIDATE_NUM_FIELDS" envDefault:"12"`
	MinFileSize     int64  `env:"VALIDATE_MIN_FILESIZE" envDefault:"65536"`
	HeaderRow       bool   `env:"HEADER_ROW_EXISTS" envDefault:"true"`
	ConvertCP1252   bool   `env:"CONVERT_CP1252" envDefault:"false"`

	// ExpectedTermCode disables the term-code check when empty.
	ExpectedTermCode string `env:"EXPECTED_TERM_CODE"`

	RegisteredCodes []string `env:"STUDENT_REGISTERED_CODES" envSeparator:","`
	AuditCodes      []string `env:"STUDENT_AUDIT_CODES" envSeparator:","`
	LateDropCodes   []string `env:"STUDENT_LATEDROP_CODES" envSeparator:","`

	// DropRatio is the anomaly-guard threshold.  Nil disables the guard.
	DropRatio *float64 `env:"VALIDATE_DROP_RATIO"`

	// CopymapFile disables CRN copy-mapping when empty.  The per-term
	// file is derived by suffixing the term code before the extension.
	CopymapFile string `env:"CRN_COPYMAP_FILE"`

	// RCOSCourses lists courses whose registration section is rewritten
	// to "<course number>-<credits>".
	RCOSCourses []string `env:"RCOS_COURSE_LIST" envSeparator:","`
}

// Comma resolves the configured delimiter to the rune handed to the CSV
// reader.
func (f *FeedOptions) Comma() rune {
	switch f.Delim {
	case "tab", "":
		return '\t'
	case "comma":
		return ','
	default:
		return []rune(f.Delim)[0]
	}
}

type LocalSourceOptions struct {
	SourceCSV string `env:"LOCAL_SOURCE_CSV"`
}

type JSONRemoteOptions struct {
	Hostname string `env:"JSON_REMOTE_HOSTNAME"`
	Port     int    `env:"JSON_REMOTE_PORT" envDefault:"22"`
	// Fingerprint is the pinned SHA256 host key fingerprint, in the
	// "SHA256:..." form printed by ssh-keygen -lf.
	Fingerprint string `env:"JSON_REMOTE_FINGERPRINT"`
	Username    string `env:"JSON_REMOTE_USERNAME"`
	Password    string `env:"JSON_REMOTE_PASSWORD"`
	RemotePath  string `env:"JSON_REMOTE_PATH"`
	LocalPath   string `env:"JSON_LOCAL_PATH"`
}

type ReportOptions struct {
	CacheFile string `env:"REPORT_CACHE_FILE" envDefault:"/tmp/autofeed_enrollment_cache.csv"`
	OutDir    string `env:"REPORT_OUT_DIR" envDefault:"."`
}

type Configuration struct {
	Database DatabaseOptions
	Feed     FeedOptions
	Columns  ColumnMap
	Local    LocalSourceOptions
	Remote   JSONRemoteOptions
	Report   ReportOptions

	ErrorLogFile string `env:"ERROR_LOG_FILE" envDefault:"/var/local/submitty/bin/auto_feed_error.log"`
	// ErrorEmail disables email reports when empty.
	ErrorEmail string `env:"ERROR_EMAIL"`
	SMTPAddr   string `env:"SMTP_ADDR" envDefault:"localhost:25"`
	MailFrom   string `env:"MAIL_FROM" envDefault:"autofeed@localhost"`

	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// Load reads .env files and the process environment into a fresh
// Configuration and validates it.  The result is treated as immutable
// and passed into each component's constructor.
func Load(envFiles ...string) (*Configuration, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env", ".env.local"}
	}
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, err
	}
	c := &Configuration{}
	if err := env.Parse(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.Database.Opts = c.Database.ConnectionString()
	return c, nil
}

// Validate checks required keys and column-map sanity at load time so
// misconfiguration surfaces before any row is read.
func (c *Configuration) Validate() error {
	if c.Feed.CSVFile == "" {
		return fmt.Errorf("CSV_FILE is required")
	}
	if len(c.Feed.RegisteredCodes) == 0 {
		return fmt.Errorf("STUDENT_REGISTERED_CODES is required")
	}
	if c.Feed.ExpectedColumns < 1 {
		return fmt.Errorf("VALIDATE_NUM_FIELDS must be positive, got %d", c.Feed.ExpectedColumns)
	}
	if c.Feed.DropRatio != nil && (*c.Feed.DropRatio <= 0 || *c.Feed.DropRatio > 1) {
		return fmt.Errorf("VALIDATE_DROP_RATIO must be in (0, 1], got %v", *c.Feed.DropRatio)
	}

	required := map[string]int{
		"COLUMN_COURSE_PREFIX": c.Columns.CoursePrefix,
		"COLUMN_COURSE_NUMBER": c.Columns.CourseNumber,
		"COLUMN_REGISTRATION":  c.Columns.Registration,
		"COLUMN_SECTION":       c.Columns.Section,
		"COLUMN_USER_ID":       c.Columns.UserID,
		"COLUMN_NUMERIC_ID":    c.Columns.NumericID,
		"COLUMN_FIRSTNAME":     c.Columns.FirstName,
		"COLUMN_LASTNAME":      c.Columns.LastName,
		"COLUMN_PREFERREDNAME": c.Columns.PreferredName,
		"COLUMN_EMAIL":         c.Columns.Email,
		"COLUMN_TERM_CODE":     c.Columns.TermCode,
	}
	for name, idx := range required {
		if idx < 0 || idx >= c.Feed.ExpectedColumns {
			return fmt.Errorf("%s=%d is outside the expected %d columns", name, idx, c.Feed.ExpectedColumns)
		}
	}
	for name, idx := range map[string]int{"COLUMN_CRN": c.Columns.CRN, "COLUMN_CREDITS": c.Columns.Credits} {
		if idx >= c.Feed.ExpectedColumns {
			return fmt.Errorf("%s=%d is outside the expected %d columns", name, idx, c.Feed.ExpectedColumns)
		}
	}
	return nil
}
