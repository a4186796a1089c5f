//go:build !(darwin || freebsd || linux || netbsd || windows)

package fgdb

import "errors"

func openLibrary(string) (Handle, error) {
	return 0, errors.ErrUnsupported
}

func closeLibrary(Handle) error {
	return nil
}
