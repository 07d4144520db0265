//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// epollWaitMillis bounds each epoll_wait so cancellation is noticed promptly.
const epollWaitMillis = 250

// readInputEventsEpoll multiplexes all devices on a single epoll instance and
// delivers decoded events to onEvent until ctx is canceled or a device fails.
func readInputEventsEpoll(ctx context.Context, files []*os.File, onEvent func(inputEvent)) error {
	if len(files) == 0 {
		return fmt.Errorf("no input devices provided")
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add %s: %w", f.Name(), err)
		}
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, inputEventSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, epollEvents, epollWaitMillis)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("device error/hangup: %s", f.Name())
			}

			if _, err := f.Read(buf); err != nil {
				return fmt.Errorf("read from %s: %w", f.Name(), err)
			}

			ev, err := decodeInputEvent(buf)
			if err != nil {
				continue
			}
			onEvent(ev)
		}
	}
}

// runKeyboard opens the operator keyboards and forwards C/D presses to the
// daemon. With no devices configured it returns immediately.
func runKeyboard(ctx context.Context, devices []string, events chan<- Event, logger *slog.Logger) error {
	if len(devices) == 0 {
		logger.Debug("keyboard input disabled (no devices)")
		return nil
	}

	files := make([]*os.File, 0, len(devices))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, dev := range devices {
		f, err := os.Open(ExpandPath(dev))
		if err != nil {
			return fmt.Errorf("open keyboard %s: %w", dev, err)
		}
		files = append(files, f)
	}

	logger.Info("keyboard input listening", "devices", devices)

	return readInputEventsEpoll(ctx, files, func(ie inputEvent) {
		ev, ok := translateKey(ie)
		if !ok {
			return
		}
		select {
		case events <- ev:
		default:
			logger.Warn("event queue full, dropping key event", "code", ie.Code)
		}
	})
}
