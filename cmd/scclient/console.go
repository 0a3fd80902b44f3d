package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/matthew-kal/SC---FRONTEND/internal/biometric"
	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
	"github.com/matthew-kal/SC---FRONTEND/internal/session"
)

// console reads answers from the terminal. Shared by the prompter and the
// simulated biometric sensor so they consume one input stream.
type console struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: bufio.NewReader(in), out: out}
}

func (c *console) ask(ctx context.Context, question string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprint(c.out, question)
	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		ch <- answer{line: strings.TrimSpace(line), err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-ch:
		if a.err != nil && a.err != io.EOF {
			return "", a.err
		}
		return a.line, nil
	}
}

// ConfirmBiometricSetup implements biometric.Prompter.
func (c *console) ConfirmBiometricSetup(ctx context.Context, typeLabel string) (bool, error) {
	line, err := c.ask(ctx, fmt.Sprintf("Enable %s for faster login? [y/N] ", typeLabel))
	if err != nil {
		return false, err
	}
	return strings.EqualFold(line, "y") || strings.EqualFold(line, "yes"), nil
}

// consoleSensor simulates an enrolled fingerprint sensor.
type consoleSensor struct {
	console *console
}

func (s consoleSensor) Capabilities(ctx context.Context) (biometric.Capabilities, error) {
	return biometric.Capabilities{
		HasHardware:   true,
		Enrolled:      true,
		SecurityLevel: 2,
		Types:         []biometric.Type{biometric.TypeFingerprint},
	}, nil
}

func (s consoleSensor) Authenticate(ctx context.Context, prompt biometric.Prompt) (biometric.HardwareResult, error) {
	line, err := s.console.ask(ctx, fmt.Sprintf("%s [m]atch / [n]o match / [c]%s / [f]%s: ",
		prompt.Message, strings.ToLower(prompt.CancelLabel), strings.ToLower(prompt.FallbackLabel)))
	if err != nil {
		return biometric.HardwareResult{}, err
	}
	switch strings.ToLower(line) {
	case "m", "match":
		return biometric.HardwareResult{Success: true}, nil
	case "c", "cancel":
		return biometric.HardwareResult{Error: biometric.ErrorUserCancel}, nil
	case "f", "fallback":
		return biometric.HardwareResult{Error: biometric.ErrorUserFallback}, nil
	default:
		return biometric.HardwareResult{Error: biometric.ErrorAuthenticationFailed}, nil
	}
}

// consoleNavigator prints navigation transitions.
type consoleNavigator struct {
	out io.Writer
}

func (n consoleNavigator) ResetToLogin(notice session.Notice) {
	if notice != session.NoticeNone {
		fmt.Fprintf(n.out, "! %s\n", notice)
	}
	fmt.Fprintln(n.out, "-> Login")
}

func (n consoleNavigator) EnterApp(role domain.Role) {
	fmt.Fprintf(n.out, "-> App (%s)\n", role)
}
