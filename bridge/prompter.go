package bridge

import "context"

// Prompter asks the user questions on behalf of the kernel. Calls come from
// session goroutines, never from the foreground loop.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, question string) (bool, error)
	// Input reads one line. An error means the user aborted, and the
	// kernel is interrupted.
	Input(ctx context.Context, prompt string, password bool) (string, error)
}

// DeclinePrompter answers no to every question and has no input. It is the
// default for headless use.
type DeclinePrompter struct{}

func (DeclinePrompter) Confirm(context.Context, string) (bool, error) {
	return false, nil
}

func (DeclinePrompter) Input(context.Context, string, bool) (string, error) {
	return "", ErrNoInput
}
