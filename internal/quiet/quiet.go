// Package quiet silences the native stdout chatter mc_core prints while it
// processes commands.
//
// Suppression works on the process file descriptor, so everything written to
// stdout while it is active is discarded, Go output included. Callers must
// serialize Suppress/restore pairs.
package quiet

import "errors"

// ErrUnsupported is returned on platforms without descriptor redirection.
var ErrUnsupported = errors.New("stdout suppression not supported on this platform")

// Do runs fn with stdout suppressed. When suppression is unavailable fn
// still runs, unsuppressed, and the suppression error is returned.
func Do(fn func()) error {
	restore, err := Suppress()
	if err != nil {
		fn()
		return err
	}
	defer restore()
	fn()
	return nil
}
