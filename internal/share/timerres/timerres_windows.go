//go:build windows

package timerres

import (
	"sync"

	"golang.org/x/sys/windows"
)

var (
	mu    sync.Mutex
	count int

	winmm               = windows.NewLazySystemDLL("winmm.dll")
	procTimeBeginPeriod = winmm.NewProc("timeBeginPeriod")
	procTimeEndPeriod   = winmm.NewProc("timeEndPeriod")
)

const periodMs = 1

func platformAcquire() {
	mu.Lock()
	defer mu.Unlock()
	if count == 0 {
		procTimeBeginPeriod.Call(uintptr(periodMs))
	}
	count++
}

func platformRelease() {
	mu.Lock()
	defer mu.Unlock()
	if count == 0 {
		return
	}
	count--
	if count == 0 {
		procTimeEndPeriod.Call(uintptr(periodMs))
	}
}
