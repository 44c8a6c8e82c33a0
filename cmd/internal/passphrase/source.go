// Package passphrase unlocks the voucherd keystore.
package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

var ErrEmpty = errors.New("passphrase: keystore passphrase is empty")

// Terminal reads a secret without echo.
type Terminal interface {
	Interactive() bool
	ReadSecret() ([]byte, error)
}

type stdinTerminal struct{}

func (stdinTerminal) Interactive() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

func (stdinTerminal) ReadSecret() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }

// Source yields the keystore passphrase. The named variable wins over the
// terminal; whichever answers first is remembered for the process lifetime.
type Source struct {
	envVar   string
	terminal Terminal
	out      io.Writer

	once sync.Once
	pass string
	err  error
}

func NewSource(envVar string) *Source {
	return &Source{envVar: strings.TrimSpace(envVar), terminal: stdinTerminal{}, out: os.Stderr}
}

// WithTerminal swaps the prompt backend and the writer receiving the prompt.
func (s *Source) WithTerminal(t Terminal, out io.Writer) *Source {
	s.terminal = t
	s.out = out
	return s
}

func (s *Source) Get() (string, error) {
	s.once.Do(func() { s.pass, s.err = s.resolve() })
	return s.pass, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if pass, set := os.LookupEnv(s.envVar); set {
			return nonBlank(pass, s.envVar)
		}
	}
	if !s.terminal.Interactive() {
		if s.envVar == "" {
			return "", errors.New("passphrase: no terminal to prompt on")
		}
		return "", fmt.Errorf("passphrase: %s unset and no terminal to prompt on", s.envVar)
	}
	fmt.Fprint(s.out, "voucherd keystore passphrase: ")
	raw, err := s.terminal.ReadSecret()
	fmt.Fprintln(s.out)
	if err != nil {
		return "", fmt.Errorf("passphrase: read terminal: %w", err)
	}
	return nonBlank(string(raw), "terminal input")
}

func nonBlank(pass, origin string) (string, error) {
	if strings.TrimSpace(pass) == "" {
		return "", fmt.Errorf("%w (%s)", ErrEmpty, origin)
	}
	return pass, nil
}
