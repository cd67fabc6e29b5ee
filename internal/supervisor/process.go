package supervisor

import (
	"os"
	"os/exec"
	"time"
)

// Process is a running helper.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func newProcess(cmd *exec.Cmd) *Process {
	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p
}

// Pid returns the process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err is the exit error. Only valid after Done is closed.
func (p *Process) Err() error { return p.err }

// Stop asks the process to exit and kills it if it does not within a few
// seconds. It returns once the process is gone.
func (p *Process) Stop() {
	select {
	case <-p.done:
		return
	default:
	}

	_ = p.cmd.Process.Signal(os.Interrupt)
	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}
