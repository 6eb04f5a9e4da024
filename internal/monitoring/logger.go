// Package monitoring carries the process-wide diagnostic logger. Link-layer
// code reports operational events (reconnects, buffer resets) through Logf so
// embedders can redirect or silence them without threading a logger through
// every constructor.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// may be replaced with SetLogger.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
