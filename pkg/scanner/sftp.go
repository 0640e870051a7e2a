package scanner

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sftpConn bundles the SFTP session with its underlying SSH transport
// so both are released when a pass finishes. Close may be called from
// the pass teardown and from a listing timeout concurrently, so it is
// guarded by a sync.Once.
type sftpConn struct {
	ssh  *ssh.Client
	sftp *sftp.Client

	closeOnce sync.Once
	closeErr  error
}

func (c *sftpConn) ReadDir(path string) ([]os.FileInfo, error) {
	return c.sftp.ReadDir(path)
}

func (c *sftpConn) Close() error {
	c.closeOnce.Do(func() {
		sftpErr := c.sftp.Close()
		sshErr := c.ssh.Close()

		if sftpErr != nil {
			c.closeErr = sftpErr

			return
		}

		c.closeErr = sshErr
	})

	return c.closeErr
}

// dialSFTP opens the SSH transport and SFTP session. The dial and
// handshake are bounded by the configured connect timeout; a hung
// remote cannot stall a pass indefinitely.
func (s *sftpScanner) dialSFTP(ctx context.Context) (remoteFS, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sshCfg := &ssh.ClientConfig{
		User: s.cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(s.cfg.Password),
		},
		// The fileserver sits on a closed factory network and rotates
		// host keys on reimage, matching the accept-any policy of the
		// tooling that preceded this service.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         s.cfg.Timeout(),
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	sshClient, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()

		return nil, fmt.Errorf("opening sftp session: %w", err)
	}

	return &sftpConn{ssh: sshClient, sftp: sftpClient}, nil
}
