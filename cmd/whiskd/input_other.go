//go:build !linux

package main

import (
	"context"
	"fmt"
	"log/slog"
)

// runKeyboard needs evdev; elsewhere only the socket and websocket inputs exist.
func runKeyboard(_ context.Context, devices []string, _ chan<- Event, logger *slog.Logger) error {
	if len(devices) == 0 {
		logger.Debug("keyboard input disabled (no devices)")
		return nil
	}
	return fmt.Errorf("keyboard input requires linux evdev")
}
