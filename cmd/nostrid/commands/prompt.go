package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"
)

func promptSecret(w io.Writer, prompt string) ([]byte, error) {
	fmt.Fprint(w, prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// promptNewPassword asks twice and requires both entries to match.
func promptNewPassword(w io.Writer) (string, error) {
	pw, err := promptSecret(w, "Enter password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	defer zeroBytes(pw)

	confirm, err := promptSecret(w, "Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("read confirmation password: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(pw, confirm) {
		return "", userError("passwords do not match")
	}
	return string(pw), nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
