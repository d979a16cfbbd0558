// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package processes runs a child command while forwarding termination
// signals to it, instead of letting Go's default signal handling kill the
// parent without giving the child a chance to clean up.
package processes

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"

	"golang.org/x/sys/unix"
)

func sendSignal(cmd *exec.Cmd, s os.Signal) {
	if err := cmd.Process.Signal(s); err != nil {
		// This might happen if the process has already terminated.
		log.Printf("failed to send %s to pid %d: %v", s, cmd.Process.Pid, err)
	}
}

func handleSignal(cmd *exec.Cmd, s os.Signal) error {
	switch s {
	case unix.SIGTERM:
		sendSignal(cmd, s)
		return nil
	default:
		return fmt.Errorf("unexpected signal received: %s", s)
	}
}

// Run starts cmd and waits for it to exit, forwarding SIGTERM to it and
// ignoring SIGINT for the duration (the foreground process group already
// receives SIGINT directly from the terminal). cmd must not have been
// created with exec.CommandContext, since that kills the process instead of
// giving it a chance to terminate gracefully.
func Run(ctx context.Context, cmd *exec.Cmd) error {
	signal.Ignore(unix.SIGINT)
	defer signal.Reset(unix.SIGINT)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM)
	defer signal.Stop(sigs)

	if err := cmd.Start(); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		errc <- cmd.Wait()
	}()

	for {
		select {
		case s := <-sigs:
			if err := handleSignal(cmd, s); err != nil {
				// Don't exit; we still need to reap the child.
				log.Print(err)
			}
		case <-ctx.Done():
			sendSignal(cmd, unix.SIGTERM)
			return <-errc
		case err := <-errc:
			return err
		}
	}
}

// ExitCode translates a process's wait status into the shell's
// 128+signal convention for processes killed by a signal.
func ExitCode(state *os.ProcessState) (int, bool) {
	status, ok := state.Sys().(unix.WaitStatus)
	if !ok {
		return 0, false
	}
	if status.Signaled() {
		return int(status.Signal()) + 128, true
	}
	return status.ExitStatus(), true
}
