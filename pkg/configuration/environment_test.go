package configuration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CSV_FILE", "/tmp/feed.csv")
	t.Setenv("STUDENT_REGISTERED_CODES", "RW,RA")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	require.Equal(t, "submitty", cfg.Database.Name)
	require.Equal(t, '\t', cfg.Feed.Comma())
	require.Equal(t, 12, cfg.Feed.ExpectedColumns)
	require.Equal(t, int64(65536), cfg.Feed.MinFileSize)
	require.True(t, cfg.Feed.HeaderRow)
	require.Equal(t, []string{"RW", "RA"}, cfg.Feed.RegisteredCodes)
	require.Nil(t, cfg.Feed.DropRatio)
	require.Equal(t, -1, cfg.Columns.CRN)
	require.Contains(t, cfg.Database.Opts, "dbname=submitty")
}

func TestLoadMissingRequiredKey(t *testing.T) {
	t.Setenv("CSV_FILE", "")
	t.Setenv("STUDENT_REGISTERED_CODES", "RW")

	_, err := Load("does-not-exist.env")
	require.ErrorContains(t, err, "CSV_FILE")
}

func TestLoadColumnOutOfRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COLUMN_EMAIL", "30")

	_, err := Load("does-not-exist.env")
	require.ErrorContains(t, err, "COLUMN_EMAIL")
}

func TestLoadDropRatioBounds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VALIDATE_DROP_RATIO", "1.5")

	_, err := Load("does-not-exist.env")
	require.ErrorContains(t, err, "VALIDATE_DROP_RATIO")
}

func TestCommaResolution(t *testing.T) {
	require.Equal(t, '\t', (&FeedOptions{Delim: "tab"}).Comma())
	require.Equal(t, ',', (&FeedOptions{Delim: "comma"}).Comma())
	require.Equal(t, ';', (&FeedOptions{Delim: ";"}).Comma())
}
