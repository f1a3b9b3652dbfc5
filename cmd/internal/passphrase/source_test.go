package passphrase

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestGetPrefersEnvironment(t *testing.T) {
	t.Setenv("NDX_TEST_PASS", "hunter2")
	s := NewSource("NDX_TEST_PASS")
	s.prompt = func(string) (string, error) {
		t.Fatalf("prompt should not be used")
		return "", nil
	}
	got, err := s.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestGetRejectsEmptyEnvironment(t *testing.T) {
	t.Setenv("NDX_TEST_PASS", "   ")
	if _, err := NewSource("NDX_TEST_PASS").Get(); err == nil {
		t.Fatalf("expected error for blank passphrase")
	}
}

func TestConfirmMismatch(t *testing.T) {
	answers := []string{"first", "second"}
	s := ForNewKey("", "cli keystore")
	s.prompt = func(prompt string) (string, error) {
		if !strings.Contains(prompt, "cli keystore") {
			t.Fatalf("unexpected prompt %q", prompt)
		}
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
	if _, err := s.Get(); err == nil || !strings.Contains(err.Error(), "do not match") {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestNoTerminalNamesEnvVar(t *testing.T) {
	s := NewSource("NDX_UNSET_PASS")
	s.prompt = func(string) (string, error) { return "", errNoTerminal }
	_, err := s.Get()
	if err == nil || !strings.Contains(err.Error(), "NDX_UNSET_PASS") {
		t.Fatalf("expected hint about env var, got %v", err)
	}
}

func TestReadPasswordWritesPrompt(t *testing.T) {
	var buf bytes.Buffer
	got, err := readPassword(&buf, "pw: ", func() ([]byte, error) { return []byte("abc"), nil })
	if err != nil || got != "abc" {
		t.Fatalf("got %q, %v", got, err)
	}
	if buf.String() != "pw: \n" {
		t.Fatalf("unexpected prompt output %q", buf.String())
	}
	_, err = readPassword(&buf, "pw: ", func() ([]byte, error) { return nil, errors.New("eof") })
	if err == nil {
		t.Fatalf("expected read error")
	}
}
