package main

import (
	"os"

	"saberd/internal/oneclick"
)

// runOneClickPrivilegedSetup is the elevated half of URL-scheme
// registration: it writes the platform's aiosaber: handler pointing back
// at this executable, then exits. The unprivileged half (Registrar.
// Register) relaunches the process with --privileged-one-click once it
// has obtained elevation.
func runOneClickPrivilegedSetup() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	return oneclick.New().PrivilegedSetup(exe)
}
