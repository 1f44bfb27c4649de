//go:build unix && !linux && !darwin

package quiet

func flushC() {}
