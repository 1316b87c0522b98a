//go:build windows

package oneclick

import (
	"os"
	"os/exec"

	"saberd/internal/util"
)

type windowsRegistrar struct{}

func New() Registrar { return windowsRegistrar{} }

// Register relaunches the current executable elevated (via a UAC
// prompt) with --privileged-one-click, matching the original's
// Start-Process -Verb runAs dance.
func (windowsRegistrar) Register() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := util.ExpandPattern(
		`Start-Process powershell -Verb runAs -ArgumentList "{exe} --privileged-one-click"`,
		map[string]string{"exe": exe},
	)
	return runPowershell(cmd)
}

func (windowsRegistrar) PrivilegedSetup(exePath string) error {
	if err := runPowershell(`reg add HKCR\aiosaber /f /v "OneClick-Provider" /d "AIOSaber"`); err != nil {
		return err
	}
	if err := runPowershell(`reg add HKCR\aiosaber /f /v "URL Protocol"`); err != nil {
		return err
	}
	cmd := util.ExpandPattern(
		`reg add HKCR\aiosaber\shell\open\command /f /ve /d "{exe} --map-install %1"`,
		map[string]string{"exe": exePath},
	)
	return runPowershell(cmd)
}

func runPowershell(cmd string) error {
	return exec.Command("powershell", "-Command", cmd).Run()
}
