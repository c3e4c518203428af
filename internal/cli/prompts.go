package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/mrz1836/estatelink/internal/provider/keystore"
	"github.com/mrz1836/estatelink/internal/vault"
	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

// minPasswordLength is the shortest keystore password accepted.
const minPasswordLength = 8

// Prompt functions are swapped out in tests.
//
//nolint:gochecknoglobals // swappable for tests
var (
	promptPasswordFn    = promptPassword
	promptNewPasswordFn = promptNewPassword
	promptSecretLineFn  = promptSecretLine
	promptConfirmFn     = promptConfirm
)

// promptPassword prompts for a password with hidden input.
// The caller is responsible for zeroing the returned bytes after use.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	password, err := term.ReadPassword(syscall.Stdin)
	outln(os.Stderr) // Add newline after hidden input

	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	return password, nil
}

// promptNewPassword prompts for a new password with confirmation.
// The caller is responsible for zeroing the returned bytes after use.
func promptNewPassword() ([]byte, error) {
	password, err := promptPasswordFn("Enter encryption password: ")
	if err != nil {
		return nil, err
	}

	if len(password) < minPasswordLength {
		vault.Zero(password)
		return nil, linkerr.WithSuggestion(
			linkerr.ErrInvalidInput,
			fmt.Sprintf("password must be at least %d characters", minPasswordLength),
		)
	}

	confirm, err := promptPasswordFn("Confirm password: ")
	if err != nil {
		vault.Zero(password)
		return nil, err
	}
	defer vault.Zero(confirm)

	if string(password) != string(confirm) {
		vault.Zero(password)
		return nil, linkerr.WithSuggestion(linkerr.ErrInvalidInput, "passwords do not match")
	}

	return password, nil
}

// promptSecretLine reads one line of hidden input, such as a mnemonic.
func promptSecretLine(prompt string) (string, error) {
	secret, err := promptPassword(prompt)
	if err != nil {
		return "", err
	}
	defer vault.Zero(secret)
	return strings.TrimSpace(string(secret)), nil
}

// promptConfirm asks a yes/no question, defaulting to no.
func promptConfirm(prompt string) bool {
	out(os.Stderr, "%s [y/N]: ", prompt)

	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}

	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

// terminalPrompter asks the keystore provider's questions on the terminal.
type terminalPrompter struct{}

func (terminalPrompter) Password(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Enter password for keystore '%s': ", name)
	password, err := readWithContext(ctx,
		func() ([]byte, error) { return promptPasswordFn(prompt) },
		vault.Zero,
	)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, keystore.ErrPromptAborted
		}
		return nil, err
	}
	if len(password) == 0 {
		return nil, keystore.ErrPromptAborted
	}
	return password, nil
}

func (terminalPrompter) Approve(ctx context.Context, req keystore.Approval) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	outln(os.Stderr)
	out(os.Stderr, "Signature request (%s) for %s:\n\n", req.Method, req.Address)
	for _, line := range strings.Split(req.Message, "\n") {
		out(os.Stderr, "  %s\n", line)
	}
	outln(os.Stderr)

	return readWithContext(ctx,
		func() (bool, error) { return promptConfirmFn("Sign this message?"), nil },
		nil,
	)
}

// readWithContext runs a blocking terminal read and returns early with
// ErrPromptAborted once ctx is done. The terminal mode is restored on abort.
// A read that completes after the abort is passed to discard. The abandoned
// read keeps stdin until it returns, so callers exit rather than prompt again.
func readWithContext[T any](ctx context.Context, read func() (T, error), discard func(T)) (T, error) {
	restore := saveTerminal()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := read()
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		restore()
		outln(os.Stderr)
		go func() {
			r := <-done
			if discard != nil && r.err == nil {
				discard(r.val)
			}
		}()
		var zero T
		return zero, fmt.Errorf("%w: %w", keystore.ErrPromptAborted, ctx.Err())
	}
}

// saveTerminal captures the stdin terminal mode and returns a func that
// puts it back. It is a no-op when stdin is not a terminal.
func saveTerminal() func() {
	fd := int(syscall.Stdin) //nolint:unconvert // syscall.Stdin is not an int on every platform
	if !term.IsTerminal(fd) {
		return func() {}
	}
	state, err := term.GetState(fd)
	if err != nil {
		return func() {}
	}
	return func() { _ = term.Restore(fd, state) }
}

var _ keystore.Prompter = terminalPrompter{}
