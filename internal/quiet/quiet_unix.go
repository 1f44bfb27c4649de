//go:build unix

package quiet

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Suppress redirects the stdout descriptor to the null device and returns a
// func that restores it. Pending C stdio output is flushed on both edges so
// that it lands on the right side of the redirect.
func Suppress() (restore func(), err error) {
	fd := int(os.Stdout.Fd())

	saved, err := unix.Dup(fd)
	if err != nil {
		return nil, fmt.Errorf("dup stdout: %w", err)
	}
	devnull, err := unix.Open(os.DevNull, unix.O_WRONLY, 0)
	if err != nil {
		_ = unix.Close(saved)
		return nil, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer unix.Close(devnull)

	flushC()
	if err := unix.Dup2(devnull, fd); err != nil {
		_ = unix.Close(saved)
		return nil, fmt.Errorf("redirect stdout: %w", err)
	}

	return func() {
		flushC()
		_ = unix.Dup2(saved, fd)
		_ = unix.Close(saved)
	}, nil
}
