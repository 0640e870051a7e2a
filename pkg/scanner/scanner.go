// Package scanner enumerates candidate test artifacts on the remote
// L10 fileserver without downloading their contents. The remote layout
// is {base_path}/yyyy/mm/dd/ containing six-digit test folders, each
// holding one or more zip archives.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/l10dash/l10dash/pkg/config"
)

// folderPattern matches the fixed-width numeric test folder names.
var folderPattern = regexp.MustCompile(`^\d{6}$`)

// Candidate is a remote folder+archive pair discovered by a scan,
// not yet parsed or persisted.
type Candidate struct {
	FolderName    string
	ArchiveName   string
	RemoteModTime time.Time
}

// Scanner lists candidate artifacts for a base date and the day before
// it, both in the source site's calendar.
type Scanner interface {
	ListCandidates(ctx context.Context, baseDate time.Time) ([]Candidate, error)
}

// RemoteUnavailableError indicates the remote host could not be
// reached or listed. It aborts the current pass; the next scheduled
// pass retries from scratch.
type RemoteUnavailableError struct {
	Op  string
	Err error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("remote unavailable during %s: %v", e.Op, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error {
	return e.Err
}

// remoteFS is the listing surface the scanner needs from a connection.
// *sftp.Client satisfies it.
type remoteFS interface {
	ReadDir(path string) ([]os.FileInfo, error)
	Close() error
}

// Compile-time interface check.
var _ Scanner = (*sftpScanner)(nil)

type sftpScanner struct {
	log         logrus.FieldLogger
	cfg         *config.RemoteConfig
	concurrency int

	// dial is swapped out in tests.
	dial func(ctx context.Context) (remoteFS, error)
}

// NewSFTPScanner creates a Scanner that connects over SFTP. Each call
// to ListCandidates opens and closes its own connection; there is no
// partial-pass resume state.
func NewSFTPScanner(
	log logrus.FieldLogger,
	cfg *config.RemoteConfig,
	concurrency int,
) Scanner {
	s := &sftpScanner{
		log:         log.WithField("component", "scanner"),
		cfg:         cfg,
		concurrency: concurrency,
	}
	s.dial = s.dialSFTP

	return s
}

// ListCandidates connects to the remote host and lists archives under
// the date directories for baseDate and the previous day. A missing
// date directory means no tests ran that day and yields nothing.
func (s *sftpScanner) ListCandidates(
	ctx context.Context, baseDate time.Time,
) ([]Candidate, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, &RemoteUnavailableError{Op: "connect", Err: err}
	}
	defer conn.Close()

	base := strings.TrimRight(s.cfg.BasePath, "/")

	// Collect matching test folders across both date directories first,
	// then fan out the per-folder listings.
	type folder struct {
		name string
		path string
	}

	var folders []folder

	for delta := 0; delta <= 1; delta++ {
		if err := ctx.Err(); err != nil {
			return nil, &RemoteUnavailableError{Op: "listing", Err: err}
		}

		date := baseDate.AddDate(0, 0, -delta)
		dayPath := fmt.Sprintf("%s/%04d/%02d/%02d",
			base, date.Year(), int(date.Month()), date.Day())

		entries, err := listDir(ctx, conn, dayPath)
		if err != nil {
			if os.IsNotExist(err) {
				s.log.WithField("path", dayPath).
					Debug("No date directory on remote, skipping")

				continue
			}

			return nil, asUnavailable(fmt.Sprintf("listing %s", dayPath), err)
		}

		for _, entry := range entries {
			if !entry.IsDir() || !folderPattern.MatchString(entry.Name()) {
				continue
			}

			folders = append(folders, folder{
				name: entry.Name(),
				path: dayPath + "/" + entry.Name(),
			})
		}
	}

	var (
		mu         sync.Mutex
		candidates []Candidate
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, f := range folders {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			files, err := listDir(gCtx, conn, f.path)
			if err != nil {
				return asUnavailable(fmt.Sprintf("listing %s", f.path), err)
			}

			mu.Lock()
			defer mu.Unlock()

			for _, file := range files {
				if file.IsDir() ||
					!strings.HasSuffix(strings.ToLower(file.Name()), ".zip") {
					continue
				}

				candidates = append(candidates, Candidate{
					FolderName:    f.name,
					ArchiveName:   file.Name(),
					RemoteModTime: file.ModTime().UTC(),
				})
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, asUnavailable("listing folders", err)
	}

	// Deterministic order keeps pass reports and logs stable.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].FolderName != candidates[j].FolderName {
			return candidates[i].FolderName < candidates[j].FolderName
		}

		return candidates[i].ArchiveName < candidates[j].ArchiveName
	})

	return candidates, nil
}

// listDir runs one directory listing under the pass context. SFTP
// calls carry no native deadline, so when the context expires the
// connection is closed to unblock the in-flight call and the listing
// fails as remote-unavailable.
func listDir(
	ctx context.Context, conn remoteFS, path string,
) ([]os.FileInfo, error) {
	type listResult struct {
		entries []os.FileInfo
		err     error
	}

	// Buffered so the goroutine can finish after a timeout abandons it.
	ch := make(chan listResult, 1)

	go func() {
		entries, err := conn.ReadDir(path)
		ch <- listResult{entries: entries, err: err}
	}()

	select {
	case res := <-ch:
		return res.entries, res.err
	case <-ctx.Done():
		_ = conn.Close()

		return nil, &RemoteUnavailableError{
			Op:  fmt.Sprintf("listing %s", path),
			Err: ctx.Err(),
		}
	}
}

// asUnavailable wraps a listing error as RemoteUnavailableError unless
// it already is one.
func asUnavailable(op string, err error) *RemoteUnavailableError {
	var unavailable *RemoteUnavailableError
	if errors.As(err, &unavailable) {
		return unavailable
	}

	return &RemoteUnavailableError{Op: op, Err: err}
}
