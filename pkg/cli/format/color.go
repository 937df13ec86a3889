package format

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Color codes
const (
	Reset      = "\033[0m"
	Bold       = "\033[1m"
	Red        = "\033[31m"
	Green      = "\033[32m"
	Yellow     = "\033[33m"
	Blue       = "\033[34m"
	Cyan       = "\033[36m"
	White      = "\033[37m"
	BoldRed    = "\033[1;31m"
	BoldGreen  = "\033[1;32m"
	BoldYellow = "\033[1;33m"
	BoldBlue   = "\033[1;34m"
	BoldCyan   = "\033[1;36m"
)

var (
	// useColor determines whether to use color in output
	useColor = true
)

func init() {
	// Disable colors by default on Windows unless the terminal supports them.
	if runtime.GOOS == "windows" {
		_, hasAnsicon := os.LookupEnv("ANSICON")
		_, hasWT := os.LookupEnv("WT_SESSION")
		useColor = hasAnsicon || hasWT
	}

	if _, noColor := os.LookupEnv("GANTRY_NO_COLOR"); noColor {
		useColor = false
	}
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		useColor = false
	}

	// If output is not a terminal, disable colors unless forced.
	if _, forceColor := os.LookupEnv("GANTRY_FORCE_COLOR"); !forceColor {
		fileInfo, _ := os.Stdout.Stat()
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			useColor = false
		}
	}
}

// EnableColor enables or disables colored output globally
func EnableColor(enable bool) {
	useColor = enable
}

// IsColorEnabled returns whether colored output is enabled
func IsColorEnabled() bool {
	return useColor
}

// Colorize adds color to a string if colors are enabled
func Colorize(color, text string) string {
	if useColor {
		return color + text + Reset
	}
	return text
}

// Success formats a message as a success (green)
func Success(format string, a ...interface{}) string {
	return Colorize(Green, fmt.Sprintf(format, a...))
}

// Warning formats a message as a warning (yellow)
func Warning(format string, a ...interface{}) string {
	return Colorize(Yellow, fmt.Sprintf(format, a...))
}

// Error formats a message as an error (red)
func Error(format string, a ...interface{}) string {
	return Colorize(Red, fmt.Sprintf(format, a...))
}

// Info formats a message as info (cyan)
func Info(format string, a ...interface{}) string {
	return Colorize(Cyan, fmt.Sprintf(format, a...))
}

// Header formats a message as a header (bold blue)
func Header(format string, a ...interface{}) string {
	return Colorize(BoldBlue, fmt.Sprintf(format, a...))
}

// Dim formats a message as dimmed (white)
func Dim(format string, a ...interface{}) string {
	return Colorize(White, fmt.Sprintf(format, a...))
}

// StatusSymbol returns a colorized status symbol
func StatusSymbol(success bool) string {
	if success {
		return Colorize(Green, "✓")
	}
	return Colorize(Red, "✗")
}

// StatusLabel formats a status label based on the status value
func StatusLabel(status string) string {
	status = strings.ToLower(status)
	switch status {
	case "running", "success", "healthy", "ready":
		return Colorize(BoldGreen, status)
	case "pending", "starting", "stopped":
		return Colorize(BoldYellow, status)
	case "failed", "error", "unhealthy":
		return Colorize(BoldRed, status)
	default:
		return Colorize(White, status)
	}
}
