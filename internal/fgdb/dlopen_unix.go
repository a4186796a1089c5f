//go:build darwin || freebsd || linux || netbsd

package fgdb

import "github.com/ebitengine/purego"

func openLibrary(path string) (Handle, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	return Handle(h), err
}

func closeLibrary(h Handle) error {
	return purego.Dlclose(uintptr(h))
}
