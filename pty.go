/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * PTY endpoint
 */

package main

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// PtyEndpoint owns a PTY pair and the symlink that publishes the
// slave's path. While the bridge is alive, publishedPath resolves to
// the slave's /dev/pts entry with mode 0666; on clean shutdown the
// symlink is removed.
type PtyEndpoint struct {
	master        *os.File
	slave         *os.File
	slaveName     string
	publishedPath string

	mu     sync.Mutex
	closed bool
}

func openPtyEndpoint(publishedPath string) (*PtyEndpoint, error) {
	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, newErr(KindFatal, "pty_open", err)
	}
	fd := int(master.Fd())

	if err := unlockpt(fd); err != nil {
		master.Close()
		return nil, newErr(KindFatal, "pty_unlock", err)
	}

	slaveName, err := ptsname(fd)
	if err != nil {
		master.Close()
		return nil, newErr(KindFatal, "pty_ptsname", err)
	}

	if err := os.Chmod(slaveName, 0666); err != nil {
		master.Close()
		return nil, newErr(KindFatal, "pty_chmod", err)
	}

	slave, err := os.OpenFile(slaveName, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		master.Close()
		return nil, newErr(KindFatal, "pty_open_slave", err)
	}

	if err := os.Remove(publishedPath); err != nil && !os.IsNotExist(err) {
		slave.Close()
		master.Close()
		return nil, newErr(KindFatal, "pty_unlink_stale", err)
	}

	if err := os.Symlink(slaveName, publishedPath); err != nil {
		slave.Close()
		master.Close()
		return nil, newErr(KindFatal, "pty_symlink", err)
	}

	// Echo-off is the only termios change made here: the PTY is the TTY
	// the host application sees, anything stricter is the consumer's
	// business.
	if err := clearEcho(fd); err != nil {
		os.Remove(publishedPath)
		slave.Close()
		master.Close()
		return nil, newErr(KindFatal, "pty_termios", err)
	}

	return &PtyEndpoint{
		master:        master,
		slave:         slave,
		slaveName:     slaveName,
		publishedPath: publishedPath,
	}, nil
}

func unlockpt(fd int) error {
	return unix.IoctlSetInt(fd, unix.TIOCSPTLCK, 0)
}

func ptsname(fd int) (string, error) {
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/dev/pts/%d", n), nil
}

func clearEcho(fd int) error {
	term, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	term.Lflag &^= unix.ECHO
	return unix.IoctlSetTermios(fd, unix.TCSETSF, term)
}

func (p *PtyEndpoint) SlaveName() string { return p.slaveName }

func (p *PtyEndpoint) PublishedPath() string { return p.publishedPath }

func (p *PtyEndpoint) Read(buf []byte) (int, error) {
	n, err := p.master.Read(buf)
	if err != nil {
		return n, newErr(KindPtyIO, "pty_read", err)
	}
	return n, nil
}

func (p *PtyEndpoint) Write(buf []byte) (int, error) {
	n, err := p.master.Write(buf)
	if err != nil {
		return n, newErr(KindPtyIO, "pty_write", err)
	}
	return n, nil
}

// Close is idempotent: closes both fds and removes the published
// symlink.
func (p *PtyEndpoint) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	p.slave.Close()
	p.master.Close()
	if err := os.Remove(p.publishedPath); err != nil && !os.IsNotExist(err) {
		return newErr(KindPtyIO, "pty_unlink", err)
	}
	return nil
}
