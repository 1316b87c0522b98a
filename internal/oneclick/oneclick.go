// Package oneclick registers (and performs) the aiosaber:// URL scheme
// handoff so a browser "install" button can hand a map id straight to
// the running daemon. Grounded on the original client's one_click.rs,
// translated from cfg(target_family) dispatch to Go build tags.
package oneclick

// Registrar performs the platform-specific one-click registration.
type Registrar interface {
	// Register launches whatever elevated step the platform needs
	// (self-relaunch under UAC on Windows, a shell script on macOS).
	Register() error
	// PrivilegedSetup performs the actual registry/association writes,
	// assumed to already be running with the needed privileges.
	PrivilegedSetup(exePath string) error
}
