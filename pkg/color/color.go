// Package color formats terminal output with github.com/fatih/color. It
// respects NO_COLOR (https://no-color.org/), TERM=dumb and --no-color.
package color

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/gxp-audit/gxa/pkg/model"
)

// Init applies environment and flag overrides on top of fatih/color's own
// terminal detection.
func Init(noColorFlag bool) {
	if noColorFlag || os.Getenv("TERM") == "dumb" {
		color.NoColor = true
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		color.NoColor = true
	}
}

// Enabled returns true if color output is enabled.
func Enabled() bool { return !color.NoColor }

// Disable turns off color output.
func Disable() { color.NoColor = true }

// Enable turns on color output.
func Enable() { color.NoColor = false }

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// Success formats a success message in green.
func Success(s string) string { return green(s) }

// Successf formats a success message with printf-style arguments.
func Successf(format string, args ...any) string { return green(fmt.Sprintf(format, args...)) }

// Error formats an error message in red.
func Error(s string) string { return red(s) }

// Errorf formats an error message with printf-style arguments.
func Errorf(format string, args ...any) string { return red(fmt.Sprintf(format, args...)) }

// Warning formats a warning message in yellow.
func Warning(s string) string { return yellow(s) }

// Info formats an informational message in cyan.
func Info(s string) string { return cyan(s) }

// EntryID formats an audit entry id.
func EntryID(s string) string { return cyan(s) }

// Entity formats an entity reference such as "machines #42".
func Entity(s string) string { return blue(s) }

// Header formats a header in bold.
func Header(s string) string { return bold(s) }

// Dim formats secondary information.
func Dim(s string) string { return faint(s) }

// Signature renders a signature status: Valid green, Invalid red,
// unavailable yellow.
func Signature(s model.SignatureStatus) string {
	switch s {
	case model.SignatureValid:
		return green(string(s))
	case model.SignatureInvalid:
		return red(string(s))
	default:
		return yellow(string(s))
	}
}

// Outcome renders a rollback outcome.
func Outcome(o model.RollbackOutcome) string {
	switch o {
	case model.OutcomeCompleted:
		return green(string(o))
	case model.OutcomeCancelled:
		return yellow(string(o))
	default:
		return red(string(o))
	}
}
