package sshexec

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Remote writes are chunked to stay under shell argument length limits.
const chunkSize = 48000

// Push writes data to remotePath on the host, creating parent directories as
// needed. Content is piped through base64 so arbitrary bytes survive the
// shell transport.
func (e *Executor) Push(ctx context.Context, host string, signer ssh.Signer, remotePath string, data []byte) error {
	client, err := e.dial(ctx, host, signer)
	if err != nil {
		return err
	}
	defer client.Close()

	if dir := path.Dir(remotePath); dir != "" && dir != "." && dir != "/" {
		if err := runChecked(client, fmt.Sprintf("mkdir -p %s", shellQuote(dir))); err != nil {
			return fmt.Errorf("create parent directory: %w", err)
		}
	}

	// Truncate / create the target file
	if err := runChecked(client, fmt.Sprintf("> %s", shellQuote(remotePath))); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		b64 := base64.StdEncoding.EncodeToString(data[i:end])
		cmd := fmt.Sprintf("echo '%s' | base64 -d >> %s", b64, shellQuote(remotePath))
		if err := runChecked(client, cmd); err != nil {
			return fmt.Errorf("write file: %w", err)
		}
	}

	return nil
}

// Pull reads remotePath from the host and returns its content as-is.
func (e *Executor) Pull(ctx context.Context, host string, signer ssh.Signer, remotePath string) ([]byte, error) {
	client, err := e.dial(ctx, host, signer)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	stdout, stderr, exitCode, err := runCaptured(client, fmt.Sprintf("cat %s", shellQuote(remotePath)))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("read file: %s", strings.TrimSpace(stderr))
	}
	return []byte(stdout), nil
}

// runCaptured creates a new SSH session, runs cmd, and returns stdout, stderr,
// the exit code, and any transport-level error.
func runCaptured(client *ssh.Client, cmd string) (stdout, stderr string, exitCode int, err error) {
	session, err := client.NewSession()
	if err != nil {
		return "", "", -1, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var outBuf, errBuf strings.Builder
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	runErr := session.Run(cmd)
	if runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			return outBuf.String(), errBuf.String(), exitErr.ExitStatus(), nil
		}
		return outBuf.String(), errBuf.String(), -1, runErr
	}
	return outBuf.String(), errBuf.String(), 0, nil
}

// runChecked runs cmd and converts a non-zero exit into an error carrying the
// command's stderr.
func runChecked(client *ssh.Client, cmd string) error {
	_, stderr, exitCode, err := runCaptured(client, cmd)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("exit %d: %s", exitCode, strings.TrimSpace(stderr))
	}
	return nil
}

// scanLines delivers r to sink one line at a time.
func scanLines(r io.Reader, sink func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sink(scanner.Text())
	}
}

// shellQuote wraps a string in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}
