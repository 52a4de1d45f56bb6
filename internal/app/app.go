// Package app builds the server and client from configuration and owns
// their lifecycles.
package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"groupsync/internal/config"
	"groupsync/internal/gs"
)

// PassphraseEnv supplies the key passphrase for unattended runs.
const PassphraseEnv = "GS_PASSPHRASE"

// PassphraseFunc returns the passphrase of the server's private key.
type PassphraseFunc func(prompt string) (string, error)

// ReadPassphrase takes the passphrase from GS_PASSPHRASE, or prompts on the
// terminal without echo.
func ReadPassphrase(prompt string) (string, error) {
	if p, ok := os.LookupEnv(PassphraseEnv); ok && p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to prompt for passphrase; set %s", PassphraseEnv)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	p := strings.TrimSpace(string(b))
	if p == "" {
		return "", errors.New("empty passphrase")
	}
	return p, nil
}

// setupLogger opens the role's rotating log and returns it as a gs.Logger.
func setupLogger(cfg *config.Config, role Role) (gs.Logger, io.Closer, error) {
	op := NewOperation(role, time.Now())
	l, closer, err := newLogger(cfg.LogDir, op.LogFile(), op.ID, cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	return &slogAdapter{l: l}, closer, nil
}
