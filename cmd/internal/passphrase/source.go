// Package passphrase resolves keystore passphrases for the ndx binaries.
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

// DefaultEnvVar is consulted before prompting.
const DefaultEnvVar = "NDX_KEYSTORE_PASSPHRASE"

// Source lazily resolves a keystore passphrase from an environment variable or
// a terminal prompt and caches the first result.
type Source struct {
	envVar  string
	label   string
	confirm bool
	prompt  func(string) (string, error)

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar before prompting for the operator keystore.
func NewSource(envVar string) *Source {
	return &Source{envVar: strings.TrimSpace(envVar), label: "operator keystore", prompt: readTerminal}
}

// ForNewKey returns a source that asks twice when prompting, for keystores
// that are about to be created.
func ForNewKey(envVar, label string) *Source {
	s := NewSource(envVar)
	if label = strings.TrimSpace(label); label != "" {
		s.label = label
	}
	s.confirm = true
	return s
}

// Get returns the cached passphrase, resolving it on first use. An empty or
// whitespace-only value is rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if s.prompt == nil {
		return "", fmt.Errorf("%s passphrase required", s.label)
	}
	value, err := s.prompt(fmt.Sprintf("Enter %s passphrase: ", s.label))
	if err != nil {
		if s.envVar != "" && errors.Is(err, errNoTerminal) {
			return "", fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
		}
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s passphrase cannot be empty", s.label)
	}
	if s.confirm {
		again, err := s.prompt(fmt.Sprintf("Repeat %s passphrase: ", s.label))
		if err != nil {
			return "", err
		}
		if again != value {
			return "", errors.New("passphrases do not match")
		}
	}
	return value, nil
}

var errNoTerminal = errors.New("no terminal available")

func readTerminal(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}
	return readPassword(os.Stderr, prompt, func() ([]byte, error) { return term.ReadPassword(fd) })
}

func readPassword(w io.Writer, prompt string, read func() ([]byte, error)) (string, error) {
	fmt.Fprint(w, prompt)
	b, err := read()
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(b), nil
}
