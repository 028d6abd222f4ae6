//go:build !unix

package fs

import "errors"

var errNoStatfs = errors.New("statfs not supported on this platform")

func diskSpace(string) (int64, int64, error) {
	return 0, 0, errNoStatfs
}

func isNoSpace(error) bool {
	return false
}
