//go:build !windows

package timerres

// Non-Windows platforms have no equivalent of timeBeginPeriod; the
// precision path falls back to its spin-wait alone, which the spec
// treats as an acceptable fallback (§9 "Precision timing").
func platformAcquire() {}
func platformRelease() {}
