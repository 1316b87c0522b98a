//go:build linux

package oneclick

import "errors"

type unsupportedRegistrar struct{}

func New() Registrar { return unsupportedRegistrar{} }

func (unsupportedRegistrar) Register() error {
	return errors.New("one-click registration is not supported on linux")
}

func (unsupportedRegistrar) PrivilegedSetup(exePath string) error {
	return errors.New("one-click registration is not supported on linux")
}
