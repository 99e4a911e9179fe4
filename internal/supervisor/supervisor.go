// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package supervisor owns the process table and drives sphere lifecycles.
//
// All state mutation happens on a single control loop started with
// [Supervisor.Run]. Spawned processes run independently once created, but
// recording a spawn, reaping a termination and advancing tiers are
// serialized against each other on that loop. The process table is the only
// shared mutable resource and the loop is its single owner.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/aibor/sphinit/internal/service"
	"github.com/aibor/sphinit/internal/switchroot"
)

// DefaultGracePeriod is the time an instance is given to exit after SIGTERM
// before SIGKILL is sent.
const DefaultGracePeriod = 5 * time.Second

// Size of the exit event queue. Exits arriving while the loop executes a
// command are buffered here until the loop drains them.
const exitQueueSize = 32

type exitEvent struct {
	sphere string
	name   string
	pid    int
	status ExitStatus
}

type command struct {
	run  func()
	done chan struct{}
}

// Supervisor spawns, monitors and stops the instances of loaded spheres.
//
// Create one with [New] and start its control loop with [Run]. The command
// methods [Supervisor.StartSphere], [Supervisor.StopSphere] and
// [Supervisor.SwitchRoot] may be called from any goroutine while the loop
// runs.
type Supervisor struct {
	spheres map[string]*LoadedSphere

	spawn      SpawnFunc
	kill       KillFunc
	grace      time.Duration
	switchRoot func(target string) error

	cmds  chan *command
	exits chan exitEvent
	done  chan struct{}

	// Process records per sphere, keyed by sphere name then instance name.
	// Spheres may share instance names, so a bare instance name never
	// identifies a record. Owned exclusively by the control loop.
	table map[string]map[string]*Record
}

// Option configures a [Supervisor].
type Option func(*Supervisor)

// WithSpawnFunc replaces the process spawner.
func WithSpawnFunc(fn SpawnFunc) Option {
	return func(s *Supervisor) { s.spawn = fn }
}

// WithKillFunc replaces the signal delivery function.
func WithKillFunc(fn KillFunc) Option {
	return func(s *Supervisor) { s.kill = fn }
}

// WithGracePeriod sets the SIGTERM grace period used by stop operations.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) { s.grace = d }
}

// WithSwitchRootFunc replaces the switch-root controller invocation.
func WithSwitchRootFunc(fn func(target string) error) Option {
	return func(s *Supervisor) { s.switchRoot = fn }
}

// New creates a supervisor for the given loaded spheres.
func New(spheres []*LoadedSphere, opts ...Option) *Supervisor {
	s := &Supervisor{
		spheres: make(map[string]*LoadedSphere, len(spheres)),
		spawn:   Spawn,
		kill:    Kill,
		grace:   DefaultGracePeriod,
		cmds:    make(chan *command),
		exits:   make(chan exitEvent, exitQueueSize),
		done:    make(chan struct{}),
		table:   make(map[string]map[string]*Record),
	}

	s.switchRoot = func(target string) error {
		return switchroot.New().Run(target)
	}

	for _, sphere := range spheres {
		s.spheres[sphere.Name] = sphere
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run executes the control loop until the context is cancelled. It blocks
// only while waiting for the next termination notification or the next
// commanded operation, never on a spawned process's own execution.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.exits:
			s.reap(ev)
		case cmd := <-s.cmds:
			cmd.run()
			close(cmd.done)
		}
	}
}

// StartSphere starts all instances of the named sphere in plan order and
// returns the per-instance outcome map.
//
// A sphere whose records are still live from an earlier start fails with
// [ErrSphereActive]; it must be stopped first. This keeps every running
// process owned by exactly one record.
//
// Cancelling the context takes effect between tiers, never mid-tier.
// Instances already running at that point stay running and must be stopped
// explicitly with [Supervisor.StopSphere].
func (s *Supervisor) StartSphere(
	ctx context.Context,
	name string,
) (OutcomeMap, error) {
	sphere, ok := s.spheres[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSphere, name)
	}

	var (
		outcomes OutcomeMap
		startErr error
	)

	err := s.do(ctx, func() {
		outcomes, startErr = s.startSphere(ctx, sphere)
	})
	if err != nil {
		return nil, err
	}

	if startErr != nil {
		return nil, startErr
	}

	return outcomes, nil
}

// StopSphere stops all instances of the named sphere in reverse plan order
// and returns the per-instance outcome map. The sphere's process records are
// dropped afterwards.
func (s *Supervisor) StopSphere(
	ctx context.Context,
	name string,
) (OutcomeMap, error) {
	sphere, ok := s.spheres[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSphere, name)
	}

	var outcomes OutcomeMap

	err := s.do(ctx, func() {
		outcomes = s.stopSphere(sphere)
	})
	if err != nil {
		return nil, err
	}

	return outcomes, nil
}

// SwitchRoot invokes the switch-root controller for the given target. On
// success the call never returns because the process image is replaced. On
// failure before the point of no return an error describing the rejected
// step is returned; failures past it are fatal by design and the controller
// does not hand them back as recoverable errors.
func (s *Supervisor) SwitchRoot(ctx context.Context, target string) error {
	var runErr error

	err := s.do(ctx, func() {
		runErr = s.switchRoot(target)
	})
	if err != nil {
		return err
	}

	return runErr
}

// do hands a function to the control loop and waits for its completion.
func (s *Supervisor) do(ctx context.Context, fn func()) error {
	cmd := &command{run: fn, done: make(chan struct{})}

	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-cmd.done:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

// startSphere runs on the control loop.
func (s *Supervisor) startSphere(
	ctx context.Context,
	sphere *LoadedSphere,
) (OutcomeMap, error) {
	if s.table[sphere.Name] != nil {
		return nil, fmt.Errorf("%w: %s", ErrSphereActive, sphere.Name)
	}

	records := make(map[string]*Record, len(sphere.Instances))
	for _, inst := range sphere.Instances {
		records[inst.Name] = &Record{Instance: inst, State: StatePending}
	}

	s.table[sphere.Name] = records

	for _, tier := range sphere.Plan.Tiers {
		// Cancellation is honored between tiers only.
		if ctx.Err() != nil {
			break
		}

		// Terminations recorded up to here count against dependency
		// satisfaction of this tier.
		s.drainExits()

		startable := make([]*Record, 0, len(tier))

		for _, name := range tier {
			rec := records[name]

			if unsat := unsatisfied(records, rec.Instance); len(unsat) > 0 {
				rec.State = StateSkipped
				rec.Err = &DependencyError{
					Instance:     name,
					Dependencies: unsat,
				}

				log.Print("INFO ", rec.Err.Error())

				continue
			}

			rec.State = StateStarting
			startable = append(startable, rec)
		}

		s.spawnTier(sphere.Name, startable)
	}

	return s.outcomes(sphere), nil
}

type spawnResult struct {
	pid    int
	exited <-chan ExitStatus
	err    error
}

// spawnTier starts the given records concurrently. Recording the results is
// serialized on the control loop after all spawns settled.
func (s *Supervisor) spawnTier(sphereName string, records []*Record) {
	results := make([]spawnResult, len(records))

	var eg errgroup.Group

	eg.SetLimit(runtime.GOMAXPROCS(0))

	for idx, rec := range records {
		eg.Go(func() error {
			pid, exited, err := s.spawn(rec.Instance.Argv)
			results[idx] = spawnResult{pid: pid, exited: exited, err: err}

			return nil
		})
	}

	_ = eg.Wait()

	for idx, rec := range records {
		result := results[idx]
		if result.err != nil {
			rec.State = StateFailed
			rec.Err = &SpawnError{
				Instance: rec.Instance.Name,
				Err:      result.err,
			}

			log.Print("ERROR ", rec.Err.Error())

			continue
		}

		rec.State = StateRunning
		rec.PID = result.pid
		rec.StartedAt = time.Now()

		s.forwardExit(sphereName, rec.Instance.Name, result.pid, result.exited)
	}
}

// unsatisfied returns the dependencies of the instance that are not
// currently running within its sphere's records. Satisfaction is about the
// current state: a dependency that already exited blocks its dependents
// exactly like a failed one.
func unsatisfied(records map[string]*Record, inst *service.Instance) []string {
	var unsat []string

	for _, dep := range inst.Depends {
		rec := records[dep]
		if rec == nil || rec.State != StateRunning {
			unsat = append(unsat, dep)
		}
	}

	return unsat
}

// stopSphere runs on the control loop.
func (s *Supervisor) stopSphere(sphere *LoadedSphere) OutcomeMap {
	records := s.table[sphere.Name]
	if records == nil {
		return OutcomeMap{}
	}

	s.drainExits()

	for _, tier := range sphere.Plan.Reverse().Tiers {
		for _, name := range tier {
			rec := records[name]
			if rec == nil || rec.State != StateRunning {
				continue
			}

			s.terminate(rec)
		}
	}

	outcomes := s.outcomes(sphere)

	// Tear down the sphere's records; outcomes are the archive.
	delete(s.table, sphere.Name)

	return outcomes
}

// terminate sends the graduated termination sequence to a running record and
// waits for it to be reaped.
func (s *Supervisor) terminate(rec *Record) {
	if err := s.kill(rec.PID, unix.SIGTERM); err != nil {
		log.Print("ERROR signal ", rec.Instance.Name, ": ", err.Error())
	}

	if s.awaitExit(rec, s.grace) {
		return
	}

	log.Print("INFO ", rec.Instance.Name, " did not exit in time, killing")

	if err := s.kill(rec.PID, unix.SIGKILL); err != nil {
		log.Print("ERROR kill ", rec.Instance.Name, ": ", err.Error())
	}

	if !s.awaitExit(rec, s.grace) {
		log.Print("ERROR ", rec.Instance.Name, " survived SIGKILL")
	}
}

// awaitExit consumes exit events until the record leaves the running state
// or the timeout elapses.
func (s *Supervisor) awaitExit(rec *Record, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for rec.State == StateRunning {
		select {
		case ev := <-s.exits:
			s.reap(ev)
		case <-timer.C:
			return false
		}
	}

	return true
}

// reap matches a termination notification to its record and records the
// exit status. It does not trigger restarts.
func (s *Supervisor) reap(ev exitEvent) {
	rec := s.table[ev.sphere][ev.name]
	if rec == nil || rec.PID != ev.pid {
		// Stale notification from an earlier start cycle.
		return
	}

	if rec.State != StateRunning {
		return
	}

	rec.State = StateExited
	rec.ExitStatus = ev.status

	log.Print(
		"INFO ", ev.name, " exited with code ",
		rec.ExitStatus.ExitCode(),
	)
}

// drainExits applies all queued termination notifications.
func (s *Supervisor) drainExits() {
	for {
		select {
		case ev := <-s.exits:
			s.reap(ev)
		default:
			return
		}
	}
}

// forwardExit relays the single exit notification of a spawned process into
// the control loop's queue. A process that died before its spawn was
// recorded is reaped right away.
func (s *Supervisor) forwardExit(
	sphere string,
	name string,
	pid int,
	exited <-chan ExitStatus,
) {
	ev := exitEvent{sphere: sphere, name: name, pid: pid}

	select {
	case status, ok := <-exited:
		if ok {
			ev.status = status
			s.reap(ev)
		}

		return
	default:
	}

	go func() {
		status, ok := <-exited
		if !ok {
			return
		}

		ev.status = status

		select {
		case s.exits <- ev:
		case <-s.done:
		}
	}()
}

func (s *Supervisor) outcomes(sphere *LoadedSphere) OutcomeMap {
	records := s.table[sphere.Name]
	outcomes := make(OutcomeMap, len(sphere.Instances))

	for _, inst := range sphere.Instances {
		if rec := records[inst.Name]; rec != nil {
			outcomes[inst.Name] = rec.outcome()
		}
	}

	return outcomes
}
