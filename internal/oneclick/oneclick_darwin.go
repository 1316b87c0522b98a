//go:build darwin

package oneclick

import "os/exec"

type darwinRegistrar struct{}

func New() Registrar { return darwinRegistrar{} }

// Register runs the bundled shell script, matching the original's
// mac-install-oneclick.sh invocation.
func (darwinRegistrar) Register() error {
	cmd := exec.Command("/bin/bash", "./mac-install-oneclick.sh")
	return cmd.Run()
}

func (darwinRegistrar) PrivilegedSetup(exePath string) error {
	// macOS handles the URL scheme association via the app bundle's
	// Info.plist, installed by mac-install-oneclick.sh; there is no
	// separate privileged step to run here.
	return nil
}
