//go:build windows

package fgdb

import "golang.org/x/sys/windows"

func openLibrary(path string) (Handle, error) {
	h, err := windows.LoadLibrary(path)
	return Handle(h), err
}

func closeLibrary(h Handle) error {
	return windows.FreeLibrary(windows.Handle(h))
}
