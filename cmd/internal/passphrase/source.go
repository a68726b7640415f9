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

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting the operator. The value is cached after the first successful
// retrieval.
type Source struct {
	envVar string
	label  string

	lookupEnv    func(string) (string, bool)
	isTerminal   func() bool
	readPassword func() ([]byte, error)
	prompt       io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a passphrase source that checks envVar before
// prompting on the terminal. label names the secret in prompts and errors,
// e.g. "keystore".
func NewSource(envVar, label string) *Source {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "keystore"
	}
	fd := int(os.Stdin.Fd())
	return &Source{
		envVar:       strings.TrimSpace(envVar),
		label:        label,
		lookupEnv:    os.LookupEnv,
		isTerminal:   func() bool { return term.IsTerminal(fd) },
		readPassword: func() ([]byte, error) { return term.ReadPassword(fd) },
		prompt:       os.Stderr,
	}
}

// Get returns the cached passphrase or resolves it on first use. A set
// environment variable wins; otherwise the operator is prompted. Whitespace-only
// passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := s.lookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}

		if !s.isTerminal() {
			if s.envVar != "" {
				s.err = fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
			} else {
				s.err = fmt.Errorf("%s passphrase required and no terminal available", s.label)
			}
			return
		}

		fmt.Fprintf(s.prompt, "Enter %s passphrase: ", s.label)
		raw, err := s.readPassword()
		fmt.Fprintln(s.prompt)
		if err != nil {
			s.err = fmt.Errorf("failed to read passphrase: %w", err)
			return
		}

		passphrase := string(raw)
		if strings.TrimSpace(passphrase) == "" {
			s.err = errors.New(s.label + " passphrase cannot be empty")
			return
		}
		s.value = passphrase
	})

	return s.value, s.err
}
