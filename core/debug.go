package core

// DebugWriter prints one line of debug output on whatever channel the target
// has (UART, USB, semihosting).
type DebugWriter func(string)

var (
	debugPrintln DebugWriter = func(string) {}
	debugEnabled bool
)

// SetDebugWriter sets the target debug output.
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	debugPrintln = writer
}

// SetDebugEnabled turns debug output on or off. It is off by default so
// transfers are not slowed down by logging.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled reports whether debug output is on.
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes msg when debug output is on.
func DebugPrintln(msg string) {
	if debugEnabled {
		debugPrintln(msg)
	}
}
