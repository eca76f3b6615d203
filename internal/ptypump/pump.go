// Package ptypump allocates a pseudo-terminal, spawns the child agent
// inside it, and ferries bytes bidirectionally — the engine's only point
// of contact with the wrapped process. Output is read on a dedicated
// goroutine and forwarded over a channel; the channel closing is the
// "child gone" signal.
package ptypump

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// Pump owns a spawned child process's pty master and a background reader
// goroutine forwarding its output.
type Pump struct {
	cmd    *exec.Cmd
	ptmx   *os.File
	output chan []byte
	done   chan struct{}
}

// Start spawns name(args...) in dir attached to a new pty sized cols x
// rows, and begins forwarding its output on a dedicated goroutine.
// Dropping the slave end happens implicitly inside pty.StartWithSize,
// ensuring the master reads EOF when the child exits.
func Start(ctx context.Context, name string, args []string, dir string, cols, rows int) (*Pump, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, fmt.Errorf("ptypump: start %s: %w", name, err)
	}

	p := &Pump{
		cmd:    cmd,
		ptmx:   ptmx,
		output: make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

// Output is the channel of raw output chunks read from the child. It is
// closed (after the final chunk, if any) once the reader hits EOF or a
// read error — the engine loop interprets this closure as "child gone".
func (p *Pump) Output() <-chan []byte { return p.output }

func (p *Pump) readLoop() {
	defer close(p.output)
	buf := make([]byte, 4096)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case p.output <- chunk:
			case <-p.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Send writes bytes to the pty master and flushes. Errors are surfaced to
// the caller (the engine loop) rather than logged silently.
func (p *Pump) Send(data []byte) error {
	_, err := p.ptmx.Write(data)
	return err
}

// Resize updates the pty's dimensions. Must be called whenever the
// output pane's inner size changes.
func (p *Pump) Resize(cols, rows int) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Wait blocks until the child exits and returns its exit code.
func (p *Pump) Wait() int {
	err := p.cmd.Wait()
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}

// Close stops the reader goroutine and releases the pty master.
func (p *Pump) Close() error {
	close(p.done)
	return p.ptmx.Close()
}
