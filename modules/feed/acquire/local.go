package acquire

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// FetchLocal validates and copies an uploaded CSV into the feed's
// working location.  The upload must have been modified the same day
// the feed runs, so yesterday's file is never silently replayed; the
// stale file's hash goes in the error so a sysadmin can tell whether
// the upload ever changed.
func FetchLocal(source, dest string, now time.Time) error {
	info, err := os.Stat(source)
	if err != nil {
		return pkgerrors.Wrap(err, "stat CSV upload")
	}

	const daySeconds = 86400
	if now.Unix()/daySeconds != info.ModTime().Unix()/daySeconds {
		hash, err := hashFile(source)
		if err != nil {
			return pkgerrors.Wrap(err, "hash stale CSV upload")
		}
		return fmt.Errorf("CSV upload modified time mismatch: today %s, uploaded file %s (md5 %s)",
			now.Format("01-02-2006"), info.ModTime().Format("01-02-2006"), hash)
	}

	src, err := os.Open(source)
	if err != nil {
		return pkgerrors.Wrap(err, "open CSV upload")
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(dest)
	if err != nil {
		return pkgerrors.Wrap(err, "create destination CSV")
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return pkgerrors.Wrap(err, "copy CSV upload")
	}
	return pkgerrors.Wrap(dst.Close(), "close destination CSV")
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
