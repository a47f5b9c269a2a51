// Package monitoring routes unexpected errors to an external reporter.
package monitoring

import "time"

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var current Monitor = NopMonitor{}

// Init sets the global monitor implementation.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if current != nil {
		current.CaptureException(err, tags)
	}
}

// Recover reports a panic in the calling goroutine and re-raises it.
func Recover() {
	if current != nil {
		current.Recover()
	}
}

// Flush waits until buffered events are sent or the timeout elapses.
func Flush(timeout time.Duration) {
	if current != nil {
		current.Flush(timeout)
	}
}
