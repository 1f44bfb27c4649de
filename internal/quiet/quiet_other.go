//go:build !unix

package quiet

// Suppress is not available off unix. On Windows the C runtime keeps its
// own copy of the stdout handle, which cannot be swapped from Go.
func Suppress() (restore func(), err error) {
	return nil, ErrUnsupported
}
