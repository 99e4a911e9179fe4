// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// sphinit is a minimal init system. Run as PID 1, it prepares the system,
// starts the boot sphere in dependency order, supervises the resulting
// process tree and, when requested on the kernel command line, hands the
// system over to the supervisor on the permanent root via switch-root.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/aibor/sphinit/internal/boot"
	"github.com/aibor/sphinit/internal/supervisor"
	"github.com/aibor/sphinit/internal/switchroot"
)

// ErrNotPidOne is returned if sphinit is started as an ordinary process.
var ErrNotPidOne = errors.New("process does not have PID 1")

const (
	bootSphereName = "boot"

	cmdlineFile = "/proc/cmdline"
	rootParam   = "sphinit.root="
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if !boot.IsPidOne() {
		return ErrNotPidOne
	}

	log.SetFlags(0)

	if err := boot.Prepare(boot.DefaultConfig()); err != nil {
		return err
	}

	spheres, err := loadSpheres()
	if err != nil {
		return err
	}

	sup := supervisor.New(spheres)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan func() error, 1)

	go control(ctx, cancel, sup, shutdown)

	err = sup.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// The loop only stops after a commanded shutdown.
	return (<-shutdown)()
}

// control drives the boot sequence and reacts to shutdown signals. It runs
// beside the supervisor's control loop and issues all commands.
func control(
	ctx context.Context,
	cancel context.CancelFunc,
	sup *supervisor.Supervisor,
	shutdown chan<- func() error,
) {
	outcomes, err := sup.StartSphere(ctx, bootSphereName)
	if err != nil {
		log.Print("ERROR start sphere: ", err.Error())
	} else {
		reportOutcomes(outcomes)
	}

	if target := switchRootTarget(); target != "" {
		if !switchRoot(ctx, sup, target) {
			shutdown <- boot.Reboot

			cancel()

			return
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGTERM, unix.SIGINT)

	sig := <-sigCh

	_, err = sup.StopSphere(context.Background(), bootSphereName)
	if err != nil {
		log.Print("ERROR stop sphere: ", err.Error())
	}

	// As PID 1, SIGINT is the three finger salute and means reboot.
	if sig == unix.SIGINT {
		shutdown <- boot.Reboot
	} else {
		shutdown <- boot.Poweroff
	}

	cancel()
}

// switchRoot stops the boot sphere and hands over to the supervisor in the
// new root. On success it never returns. It returns false if the system is
// in the fatal post-point-of-no-return state and must reboot.
func switchRoot(
	ctx context.Context,
	sup *supervisor.Supervisor,
	target string,
) bool {
	log.Print("INFO switching root to ", target)

	if _, err := sup.StopSphere(ctx, bootSphereName); err != nil {
		log.Print("ERROR stop sphere: ", err.Error())
	}

	err := sup.SwitchRoot(ctx, target)

	// Returning at all means the transition did not happen. Failures past
	// the point of no return leave no usable root to continue from.
	if errors.Is(err, switchroot.ErrFatal) {
		log.Print("ERROR ", err.Error())

		return false
	}

	if err != nil {
		log.Print("ERROR switch-root rejected, staying on boot root: ",
			err.Error())
	}

	// The boot sphere was stopped for the handover; bring it back up so the
	// system is not left idle on the boot root.
	outcomes, err := sup.StartSphere(ctx, bootSphereName)
	if err != nil {
		log.Print("ERROR start sphere: ", err.Error())
	} else {
		reportOutcomes(outcomes)
	}

	return true
}

func reportOutcomes(outcomes supervisor.OutcomeMap) {
	for name, outcome := range outcomes {
		if outcome.Err != nil {
			log.Print(
				"INFO ", name, ": ", outcome.State.String(),
				" (", outcome.Err.Error(), ")",
			)

			continue
		}

		log.Print("INFO ", name, ": ", outcome.State.String())
	}
}

// switchRootTarget returns the switch-root target from the kernel command
// line, or empty if none was given.
func switchRootTarget() string {
	cmdline, err := os.ReadFile(cmdlineFile)
	if err != nil {
		return ""
	}

	for _, field := range strings.Fields(string(cmdline)) {
		if target, ok := strings.CutPrefix(field, rootParam); ok {
			return target
		}
	}

	return ""
}
