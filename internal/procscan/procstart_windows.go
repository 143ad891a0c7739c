//go:build windows

package procscan

import (
	"strings"
	"syscall"
	"unsafe"
)

const stillActive = 259

var (
	kernel32               = syscall.NewLazyDLL("kernel32.dll")
	procGetProcessTimes    = kernel32.NewProc("GetProcessTimes")
	procGetExitCodeProcess = kernel32.NewProc("GetExitCodeProcess")
)

// pidAlive opens the process for query and checks it has not exited yet.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer func() { _ = syscall.CloseHandle(h) }()
	var code uint32
	ret, _, _ := procGetExitCodeProcess.Call(uintptr(h), uintptr(unsafe.Pointer(&code)))
	if ret == 0 {
		return false
	}
	return code == stillActive
}

func samePath(a, b string) bool { return strings.EqualFold(a, b) }

// startUnix returns the process creation time as Unix seconds on Windows using WinAPI.
// Returns 0 on error.
func startUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	h, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return 0
	}
	defer func() { _ = syscall.CloseHandle(h) }()

	var creation, exit, kernel, user syscall.Filetime
	ret, _, _ := procGetProcessTimes.Call(uintptr(h), uintptr(unsafe.Pointer(&creation)), uintptr(unsafe.Pointer(&exit)), uintptr(unsafe.Pointer(&kernel)), uintptr(unsafe.Pointer(&user)))
	if ret == 0 {
		return 0
	}
	// FILETIME counts 100ns ticks since 1601-01-01
	const ticksPerSecond = 10000000
	const epochDiff = 11644473600
	ft := (uint64(creation.HighDateTime) << 32) | uint64(creation.LowDateTime)
	return int64(ft/ticksPerSecond) - epochDiff
}
