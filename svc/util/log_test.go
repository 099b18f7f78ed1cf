package util

import "testing"

func TestLoggerUsableBeforeInit(t *testing.T) {
	// The package default must accept events even when InitLog has not
	// run yet, so config load failures in main are not swallowed.
	if !Info().Enabled() {
		t.Fatal("package logger discards events before InitLog")
	}
	if !Error().Enabled() {
		t.Fatal("package logger discards errors before InitLog")
	}
}
