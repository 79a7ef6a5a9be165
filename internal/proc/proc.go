// Package proc runs engine processes as leaders of their own process group
// so a phase can be ended by killing the whole tree at once.
package proc

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
)

// Handle is the scheduler's view of a running engine.
type Handle interface {
	Pid() int
	// Done is closed once the group leader has exited and been reaped.
	Done() <-chan struct{}
	// Err is the leader's exit error, valid after Done is closed.
	Err() error
	// Terminate kills every process of the group and waits for the leader.
	// It is safe to call more than once and after the leader exited.
	Terminate() error
}

type Group struct {
	cmd  *exec.Cmd
	pgid int

	done chan struct{}
	err  error

	termOnce sync.Once
	termErr  error
}

// Start launches cmd detached into a new process group. cmd must not have
// been started and must not be bound to a context, since the group outlives
// the caller's context until Terminate.
func Start(cmd *exec.Cmd) (*Group, error) {
	if cmd.Process != nil {
		return nil, errors.New("command already started")
	}
	setGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}

	g := &Group{
		cmd:  cmd,
		pgid: cmd.Process.Pid,
		done: make(chan struct{}),
	}
	go func() {
		g.err = cmd.Wait()
		close(g.done)
	}()
	return g, nil
}

func (g *Group) Pid() int {
	return g.pgid
}

func (g *Group) Done() <-chan struct{} {
	return g.done
}

func (g *Group) Err() error {
	select {
	case <-g.done:
		return g.err
	default:
		return nil
	}
}

// Exited reports whether the leader has already exited.
func (g *Group) Exited() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

func (g *Group) Terminate() error {
	g.termOnce.Do(func() {
		g.termErr = killGroup(g.cmd, g.pgid)
	})
	<-g.done
	return g.termErr
}
