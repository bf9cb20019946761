package session

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/creack/pty"
)

const readBufSize = 4096

// Proc is the interface the manager holds onto a running terminal process.
// Both the PTY-backed production implementation and the pipe-backed fallback
// satisfy it, so the manager never cares which one it got.
type Proc interface {
	Write(p []byte) (int, error)
	Resize(cols, rows int) error
	Kill() error
}

// Spawner starts a shell process at the given size. Output bytes are
// delivered through onData in the order the process produced them; onExit
// fires exactly once with the process exit code.
type Spawner func(cols, rows int, onData func([]byte), onExit func(exitCode int)) (Proc, error)

// defaultShell returns the platform default shell and its arguments.
// Unix shells run in login mode.
func defaultShell() (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd.exe", nil
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	return shell, []string{"-l"}
}

// DefaultSpawner probes for a usable PTY device once and returns the PTY
// spawner when one is available, falling back to the pipe spawner otherwise.
func DefaultSpawner() Spawner {
	if ptmx, tty, err := pty.Open(); err == nil {
		ptmx.Close()
		tty.Close()
		return PTYSpawner
	}
	return PipeSpawner
}

// ptyProc wraps a shell running under a pseudo-terminal.
type ptyProc struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

// PTYSpawner starts the default shell under a pseudo-terminal.
func PTYSpawner(cols, rows int, onData func([]byte), onExit func(exitCode int)) (Proc, error) {
	shell, args := defaultShell()
	cmd := exec.Command(shell, args...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return nil, fmt.Errorf("start pty shell: %w", err)
	}

	p := &ptyProc{cmd: cmd, ptmx: ptmx}

	go func() {
		buf := make([]byte, readBufSize)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				onData(chunk)
			}
			if err != nil {
				break
			}
		}

		code := 0
		if err := cmd.Wait(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = 1
			}
		}
		ptmx.Close()
		onExit(code)
	}()

	return p, nil
}

func (p *ptyProc) Write(b []byte) (int, error) {
	return p.ptmx.Write(b)
}

func (p *ptyProc) Resize(cols, rows int) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

func (p *ptyProc) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// pipeProc runs the shell without a TTY, used where no PTY device exists
// (stripped containers, CI). Resize is accepted and ignored.
type pipeProc struct {
	cmd   *exec.Cmd
	stdin *os.File

	mu     sync.Mutex
	closed bool
}

// PipeSpawner starts the default shell on plain pipes. Stdout and stderr are
// merged into a single ordered stream.
func PipeSpawner(cols, rows int, onData func([]byte), onExit func(exitCode int)) (Proc, error) {
	shell, _ := defaultShell()
	// Interactive flags make no sense without a TTY.
	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=dumb")

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	cmd.Stdin = stdinR

	outR, outW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = outW

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}
	// The child holds its own copies now.
	stdinR.Close()
	outW.Close()

	p := &pipeProc{cmd: cmd, stdin: stdinW}

	go func() {
		buf := make([]byte, readBufSize)
		for {
			n, err := outR.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				onData(chunk)
			}
			if err != nil {
				break
			}
		}

		code := 0
		if err := cmd.Wait(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = 1
			}
		}
		outR.Close()
		p.closeStdin()
		onExit(code)
	}()

	return p, nil
}

func (p *pipeProc) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, fmt.Errorf("stdin pipe closed")
	}
	return p.stdin.Write(b)
}

func (p *pipeProc) Resize(cols, rows int) error {
	return nil
}

func (p *pipeProc) Kill() error {
	p.closeStdin()
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *pipeProc) closeStdin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.stdin.Close()
		p.closed = true
	}
}
