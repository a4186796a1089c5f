package envpath

import (
	"context"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog/log"
)

// RestartMarker is set in the environment of a restarted child process.
const RestartMarker = "FGDBBENCH_RESTARTED"

// Restarted reports whether this process was started by Restarter.
func Restarted(env Env) bool {
	return env.Getenv(RestartMarker) != ""
}

// Decision is the outcome of reconciling the search path variables at startup.
type Decision struct {
	// Missing lists the dirs absent from at least one variable before the update.
	Missing []string
	// Changed reports whether any variable was rewritten.
	Changed bool
	// Restart reports whether the process must be restarted to pick up the change.
	Restart bool
}

// Decide reconciles vars with dirs and reports whether a restart is needed.
// A process that was already restarted, or runs with noRestart, never restarts.
func Decide(env Env, vars, dirs []string, noRestart bool) (Decision, error) {
	var d Decision

	d.Missing = Missing(env, vars, dirs)
	if len(d.Missing) == 0 {
		return d, nil
	}

	changed, err := Reconcile(env, vars, dirs)
	if err != nil {
		return d, err
	}
	d.Changed = changed
	d.Restart = changed && !noRestart && !Restarted(env)

	return d, nil
}

// Restarter re-launches a program so a changed environment takes effect at process start.
type Restarter struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Executable defaults to os.Executable().
	Executable string
	Args       []string
	// Env defaults to os.Environ().
	Env []string
}

// Restart runs the program as a child with the restart marker set, waits for
// it and returns its exit code.
func (r *Restarter) Restart(ctx context.Context) (int, error) {
	exe := r.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return -1, err
		}
	}

	env := r.Env
	if env == nil {
		env = os.Environ()
	}
	env = append(append([]string{}, env...), RestartMarker+"=1")

	cmd := exec.CommandContext(ctx, exe, r.Args...)
	// cancellation interrupts the child instead of killing it
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.Env = env
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if r.Stdin != nil {
		cmd.Stdin = r.Stdin
	}
	if r.Stdout != nil {
		cmd.Stdout = r.Stdout
	}
	if r.Stderr != nil {
		cmd.Stderr = r.Stderr
	}

	log.Info().
		Str("executable", exe).
		Strs("args", r.Args).
		Msg("Restarting with updated library search paths")

	err := cmd.Run()
	if code, ok := exitCode(cmd.ProcessState); ok {
		return code, nil
	}

	return -1, err
}

// exitCode maps a finished child to the code the parent should exit with.
// A child killed by a signal maps to 128 plus the signal number like shells do.
func exitCode(state *os.ProcessState) (int, bool) {
	if state == nil {
		return 0, false
	}
	if state.Exited() {
		return state.ExitCode(), true
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), true
	}

	return 0, false
}
