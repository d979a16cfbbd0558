// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mountsdk

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

func tcsetpgrp(fd int, pgid int) error {
	return unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, pgid)
}

func resetControllingTerminal() error {
	pgid := unix.Getpgrp()

	// SIGTTOU is generated when a background process tries to write to the
	// terminal. We're about to do exactly that, so ignore it or we'd be
	// suspended by our own write.
	signal.Ignore(unix.SIGTTOU)
	defer signal.Reset(unix.SIGTTOU)

	return tcsetpgrp(0, pgid)
}

func handleControlByte(b byte) {
	switch b {
	case 't':
		if err := resetControllingTerminal(); err != nil {
			log.Println("failed to update terminal pgid:", err)
		}
	default:
		log.Printf("unknown control command: %q", b)
	}
}

func fifoToChan(ctx context.Context, fifoPath string) (<-chan byte, error) {
	// Open RDWR so we always hold a write handle ourselves: that keeps the
	// open call from blocking on a writer, and lets writers come and go
	// without the reader (us) seeing EOF in between.
	fifo, err := os.OpenFile(fifoPath, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	out := make(chan byte)
	go func() {
		defer close(out)

		buf := make([]byte, 1)
		for {
			n, err := fifo.Read(buf)
			if errors.Is(err, os.ErrClosed) || n == 0 {
				return
			} else if err != nil {
				log.Println("error reading from control fifo:", err)
				return
			}
			out <- buf[0]
		}
	}()

	go func() {
		<-ctx.Done()
		fifo.Close()
	}()

	return out, nil
}

// StartControlChannel creates a FIFO at fifoPath and starts serving the one
// privileged operation a process inside the container may request of the
// process that set up its namespace: resetting the controlling terminal's
// foreground process group, since it's the one still attached to the
// original TTY. It returns a function that tears the channel down; callers
// must invoke it before returning to let the goroutines it started exit.
func StartControlChannel(fifoPath string) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})

	if err := unix.Mkfifo(fifoPath, 0o666); err != nil {
		cancel()
		return nil, err
	}

	bytes, err := fifoToChan(ctx, fifoPath)
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		defer close(stopped)
		for b := range bytes {
			handleControlByte(b)
		}
	}()

	return func() {
		cancel()
		<-stopped
	}, nil
}
