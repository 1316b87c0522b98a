package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides actionable error messages for end users
type UserFriendlyError struct {
	Message    string // User-facing message explaining what went wrong
	Suggestion string // Actionable steps to fix the issue
	DocsLink   string // Optional link to documentation
	Details    error  // Original error for debugging/logs
}

func (e *UserFriendlyError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Suggestion != "" {
		sb.WriteString("\n\n")
		sb.WriteString("How to fix:\n")
		sb.WriteString(e.Suggestion)
	}

	if e.DocsLink != "" {
		sb.WriteString("\n\n")
		sb.WriteString("Documentation: ")
		sb.WriteString(e.DocsLink)
	}

	return sb.String()
}

func (e *UserFriendlyError) Unwrap() error {
	return e.Details
}

// NewFriendlyError creates a user-friendly error
func NewFriendlyError(message, suggestion string) *UserFriendlyError {
	return &UserFriendlyError{
		Message:    message,
		Suggestion: suggestion,
	}
}

// WithDetails adds the underlying error details
func (e *UserFriendlyError) WithDetails(err error) *UserFriendlyError {
	e.Details = err
	return e
}

// WithDocs adds a documentation link
func (e *UserFriendlyError) WithDocs(link string) *UserFriendlyError {
	e.DocsLink = link
	return e
}

// Common error constructors for frequently encountered issues

// NetworkError returns a network-related error with helpful suggestions
func NetworkError(err error) *UserFriendlyError {
	msg := "Network error occurred"
	suggestion := "Check your internet connection and try again"

	if err != nil {
		errStr := err.Error()

		// DNS resolution failure
		if strings.Contains(errStr, "no such host") || strings.Contains(errStr, "name resolution") {
			msg = "Cannot resolve hostname - DNS lookup failed"
			suggestion = "1. Check your internet connection\n2. Verify DNS settings\n3. Try: ping google.com"
		}

		// Connection refused
		if strings.Contains(errStr, "connection refused") {
			msg = "Server refused connection"
			suggestion = "The server may be down or blocking requests. Try again later."
		}

		// Timeout
		if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
			msg = "Connection timed out"
			suggestion = "Server is slow or unreachable. Try:\n1. Increase network.timeout_seconds in saberd.yaml\n2. Check your network speed\n3. Try again later"
		}

		// Certificate errors
		if strings.Contains(errStr, "certificate") || strings.Contains(errStr, "x509") {
			msg = "SSL/TLS certificate verification failed"
			suggestion = "You may be behind a corporate proxy. Try:\n  export SSL_CERT_FILE=/path/to/cert.pem"
		}
	}

	return &UserFriendlyError{
		Message:    msg,
		Suggestion: suggestion,
		Details:    err,
	}
}

// TargetError returns install-target related errors, used by the
// --test-adb/--test-curl diagnostics to explain why a Quest target is
// unreachable.
func TargetError(mode, detail string, err error) *UserFriendlyError {
	msg := fmt.Sprintf("target unreachable (%s)", mode)
	suggestion := "Check the target's connection settings"

	switch mode {
	case "quest-adb":
		msg = "ADB device not responding"
		suggestion = "1. Confirm the headset is plugged in and USB debugging is allowed\n" +
			"2. Run: adb devices\n" +
			"3. Check the configured adb_serial matches the listed device"
	case "quest-http":
		msg = "BMBF HTTP endpoint not responding"
		suggestion = "1. Confirm BMBF is running on the headset and on the same network\n" +
			"2. Check the configured bmbf_host is reachable: curl http://<host>:50000/host\n" +
			"3. Retry once the headset screen is on"
	}
	if detail != "" {
		msg = msg + ": " + detail
	}

	return &UserFriendlyError{
		Message:    msg,
		Suggestion: suggestion,
		Details:    err,
	}
}

// DiskSpaceError returns disk space related errors
func DiskSpaceError(availableBytes, requiredBytes uint64) *UserFriendlyError {
	return &UserFriendlyError{
		Message: fmt.Sprintf("Insufficient disk space: need %s but only %s available",
			formatBytes(requiredBytes),
			formatBytes(availableBytes)),
		Suggestion: fmt.Sprintf("Free up at least %s of disk space and try again",
			formatBytes(requiredBytes-availableBytes)),
	}
}

// ConfigError returns configuration-related errors
func ConfigError(field, issue string) *UserFriendlyError {
	return &UserFriendlyError{
		Message:    fmt.Sprintf("Configuration error in field '%s': %s", field, issue),
		Suggestion: "Check saberd.yaml and daemon-config.yaml for typos, then restart saberd",
	}
}

// DatabaseError returns audit-log related errors with recovery suggestions
func DatabaseError(err error) *UserFriendlyError {
	msg := "Audit log error"
	suggestion := "Restart saberd; a fresh audit log will be created if missing"

	if err != nil {
		errStr := err.Error()

		if strings.Contains(errStr, "locked") {
			msg = "Audit log is locked by another process"
			suggestion = "Close other saberd instances and try again\nOr remove the stale lock: rm ~/.saberd/saberd.lock"
		}

		if strings.Contains(errStr, "corrupt") || strings.Contains(errStr, "malformed") {
			msg = "Audit log database is corrupted"
			suggestion = "Back up and remove the corrupt file, then restart:\n" +
				"  mv ~/.saberd/audit.db ~/.saberd/audit.db.backup"
		}
	}

	return &UserFriendlyError{
		Message:    msg,
		Suggestion: suggestion,
		Details:    err,
	}
}

// PathError returns file/directory path related errors
func PathError(path string, err error) *UserFriendlyError {
	msg := fmt.Sprintf("Path error: %s", path)
	suggestion := "Check that the path exists and you have permission to access it"

	if err != nil {
		errStr := err.Error()

		if strings.Contains(errStr, "permission denied") {
			msg = fmt.Sprintf("Permission denied: %s", path)
			suggestion = fmt.Sprintf("Ensure you have write permission:\n  chmod u+w %s", path)
		}

		if strings.Contains(errStr, "no such file or directory") {
			msg = fmt.Sprintf("Directory does not exist: %s", path)
			suggestion = fmt.Sprintf("Create the directory:\n  mkdir -p %s", path)
		}

		if strings.Contains(errStr, "not a directory") {
			msg = fmt.Sprintf("Path exists but is not a directory: %s", path)
			suggestion = "Remove the file or choose a different path"
		}
	}

	return &UserFriendlyError{
		Message:    msg,
		Suggestion: suggestion,
		Details:    err,
	}
}

// formatBytes converts bytes to human-readable format
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
