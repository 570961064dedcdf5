// Package sshexec is the secure transport executor: it opens SSH sessions to
// provisioned VMs using an ephemeral key, runs commands with a timeout, and
// transfers file content over the same transport.
//
// Every entry point takes the target address and an ssh.Signer explicitly; no
// connection state is kept between calls. Each operation dials, runs, and
// closes its own connection.
package sshexec

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

const dialTimeout = 10 * time.Second

// sleep is a package-level var so tests can override retry delays.
var sleep = time.Sleep

// ExecResult captures the outcome of one remote command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Executor runs commands and file transfers on remote VMs over SSH.
type Executor struct {
	User string
	Port int
}

func NewExecutor(user string, port int) *Executor {
	if user == "" {
		user = "root"
	}
	if port <= 0 {
		port = 22
	}
	return &Executor{User: user, Port: port}
}

func (e *Executor) clientConfig(signer ssh.Signer) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User: e.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		// Hosts are created fresh per session; there is no prior host key
		// to pin.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}
}

// dial opens an SSH connection to host, honouring ctx cancellation.
func (e *Executor) dial(ctx context.Context, host string, signer ssh.Signer) (*ssh.Client, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", e.Port))

	var client *ssh.Client
	var dialErr error
	dialDone := make(chan struct{})

	go func() {
		defer close(dialDone)
		client, dialErr = ssh.Dial("tcp", addr, e.clientConfig(signer))
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("dial %s: %w", addr, ctx.Err())
	case <-dialDone:
		if dialErr != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, dialErr)
		}
	}
	return client, nil
}

// Run executes command on the remote host in the given working directory,
// bounded by timeout. The exit code, stdout, and stderr are returned verbatim;
// a non-zero exit code is not an error.
func (e *Executor) Run(ctx context.Context, host string, signer ssh.Signer, dir, command string, timeout time.Duration) (*ExecResult, error) {
	start := time.Now()

	client, err := e.dial(ctx, host, signer)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	full := command
	if dir != "" {
		full = fmt.Sprintf("cd %s && %s", shellQuote(dir), command)
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- session.Run(full)
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var runErr error
	select {
	case <-ctx.Done():
		session.Close()
		return nil, fmt.Errorf("run command: %w", ctx.Err())
	case <-timeoutCh:
		session.Close()
		return nil, fmt.Errorf("command timed out after %s", timeout)
	case runErr = <-runDone:
	}

	result := &ExecResult{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return nil, fmt.Errorf("run command: %w", runErr)
	}
	return result, nil
}

// Stream executes command on the remote host and delivers stdout/stderr to
// sink line by line as the command produces output. Returns the exit code.
func (e *Executor) Stream(ctx context.Context, host string, signer ssh.Signer, dir, command string, sink func(line string)) (int, error) {
	client, err := e.dial(ctx, host, signer)
	if err != nil {
		return -1, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("stdout pipe: %w", err)
	}
	session.Stderr = session.Stdout

	full := command
	if dir != "" {
		full = fmt.Sprintf("cd %s && %s", shellQuote(dir), command)
	}
	if err := session.Start(full); err != nil {
		return -1, fmt.Errorf("start command: %w", err)
	}

	go func() {
		<-ctx.Done()
		session.Close()
	}()

	scanLines(stdout, sink)

	if err := session.Wait(); err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return exitErr.ExitStatus(), nil
		}
		return -1, fmt.Errorf("wait command: %w", err)
	}
	return 0, nil
}

// WaitReachable attempts an SSH handshake against the host until it succeeds
// or the attempt budget is exhausted. Cloud-init may still be running when
// the provider first reports the VM active, so failures are retried with a
// fixed delay.
func (e *Executor) WaitReachable(ctx context.Context, host string, signer ssh.Signer, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		client, err := e.dial(ctx, host, signer)
		if err == nil {
			client.Close()
			if i > 0 {
				log.Printf("[sshexec] %s reachable after %d attempt(s)", host, i+1)
			}
			return nil
		}
		lastErr = err
		if i < attempts-1 {
			sleep(delay)
		}
	}
	return fmt.Errorf("host %s not reachable after %d attempts: %w", host, attempts, lastErr)
}
