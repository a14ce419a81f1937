package serialmux

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrCommandNotAllowed is returned for board commands outside the allow list.
var ErrCommandNotAllowed = errors.New("command not allowed")

// MaxRateHz is the highest sample rate the board firmware accepts.
const MaxRateHz = 1000

// Board commands accepted from the admin console.
var allowedCommands = []string{
	"STREAM=ACCEL", // Stream raw accelerometer readings, one per line
	"STREAM=OFF",   // Stop streaming
	"STATUS?",      // Report FW, RATE and STREAM as KEY=VALUE lines
	"VERSION?",     // Report firmware version
	"CAL",          // Zero the accelerometer at rest
	"RESET",        // Soft reset; the board comes back with streaming off
}

// RateCommand returns the command that sets the board's sample rate.
func RateCommand(hz int) (string, error) {
	if hz <= 0 || hz > MaxRateHz {
		return "", fmt.Errorf("invalid sample rate %d (1-%d Hz)", hz, MaxRateHz)
	}
	return "RATE=" + strconv.Itoa(hz), nil
}

// ValidateCommand checks command against the allow list. RATE=<hz> is
// accepted for any rate RateCommand accepts.
func ValidateCommand(command string) error {
	command = strings.TrimSpace(command)
	if v, ok := strings.CutPrefix(command, "RATE="); ok {
		hz, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrCommandNotAllowed, command)
		}
		_, err = RateCommand(hz)
		return err
	}
	for _, c := range allowedCommands {
		if c == command {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrCommandNotAllowed, command)
}
