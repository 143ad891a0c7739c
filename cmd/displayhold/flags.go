package main

import "time"

// Flag structs decouple cobra from the command logic for testing.

type GlobalFlags struct {
	ConfigPath string
}

type ServeFlags struct {
	ConfigPath string
}

type RunFlags struct {
	ConfigPath string
	// Stay keeps the channel open after the launch until a signal or
	// StopHold arrives.
	Stay    bool
	Timeout time.Duration
}

type InstancesFlags struct {
	ConfigPath string
}

type StopHoldFlags struct {
	ConfigPath string
	PID        int
}

type ShortcutAddFlags struct {
	ConfigPath  string
	Name        string
	Command     string
	WorkDir     string
	Profile     string
	WaitForExit bool
}

type ShortcutFlags struct {
	ConfigPath string
	ID         string
}
