package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/ipybridge/bridge"
	"github.com/tailored-agentic-units/ipybridge/display"
)

const (
	replPrompt   = "ipy> "
	replContinue = "...  "
	flushEvery   = 50 * time.Millisecond
)

const replHelp = `commands:
  :complete <text>    list completions for text
  :inspect <word>     show documentation for word
  :interrupt          interrupt the kernel
  :terminate          shut the kernel down
  :restart            restart the kernel
  :connect [args]     connect to another kernel
  :status             show connection status
  :quit               leave
A line ending in "\" continues on the next line.`

func newReplCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl [-- connect args]",
		Short: "run an interactive shell against a kernel",
		Long:  "Connects to a kernel and reads code from the terminal.\n\n" + replHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.repl(cmd.Context(), args)
		},
	}
}

type repl struct {
	bridge  *bridge.Bridge
	rl      *readline.Instance
	printer *display.Printer
	out     io.Writer
}

func (a *app) repl(ctx context.Context, argv []string) error {
	comp := &completer{ctx: ctx}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		AutoComplete:    comp,
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
	if err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	defer rl.Close()

	buffer := display.NewBuffer(display.WithANSIHighlight(a.config.Session.Render.Highlight()))
	r := &repl{
		rl:      rl,
		printer: display.NewPrinter(buffer, rl.Stdout()),
		out:     rl.Stdout(),
	}
	r.bridge = bridge.New(a.config,
		bridge.WithScrollback(buffer),
		bridge.WithPrompter(&terminalPrompter{repl: r}),
		bridge.WithObserver(a.observer),
	)
	comp.bridge = r.bridge

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.bridge.Loop().Run(ctx)
	go r.flushLoop(ctx)
	go r.interrupts(ctx)

	if _, err := r.bridge.Connect(ctx, argv); err != nil {
		return err
	}
	r.flush(ctx)

	for {
		code, err := r.read()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			break
		}

		if strings.HasPrefix(code, ":") {
			if quit := r.command(ctx, code); quit {
				break
			}
		} else if strings.TrimSpace(code) != "" {
			if _, err := r.bridge.Run(ctx, code, false); err != nil {
				r.errorf("%v", err)
			}
		}
		r.flush(ctx)
	}

	closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return r.bridge.Close(closeCtx)
}

// read returns one logical input, joining lines that end in a backslash.
func (r *repl) read() (string, error) {
	var lines []string
	r.rl.SetPrompt(replPrompt)
	defer r.rl.SetPrompt(replPrompt)

	for {
		line, err := r.rl.Readline()
		if err != nil {
			return "", err
		}
		if body, ok := strings.CutSuffix(line, `\`); ok {
			lines = append(lines, body)
			r.rl.SetPrompt(replContinue)
			continue
		}
		lines = append(lines, line)
		return strings.Join(lines, "\n"), nil
	}
}

// command runs a ":" command and reports whether the shell should exit.
func (r *repl) command(ctx context.Context, line string) bool {
	name, rest, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch name {
	case "q", "quit", "exit":
		return true
	case "complete":
		var c *bridge.Completion
		if c, err = r.bridge.Complete(ctx, rest, len(rest)); err == nil {
			fmt.Fprintln(r.out, strings.Join(c.Matches, "  "))
		}
	case "inspect":
		word, level := rest, 0
		if w, ok := strings.CutSuffix(rest, "??"); ok {
			word, level = w, 1
		}
		err = r.bridge.Inspect(ctx, word, level)
	case "interrupt":
		err = r.bridge.Interrupt(ctx)
	case "terminate":
		err = r.bridge.Terminate(ctx)
	case "restart":
		err = r.bridge.Restart(ctx)
	case "connect":
		_, err = r.bridge.Connect(ctx, strings.Fields(rest))
	case "status":
		st := r.bridge.Status(ctx)
		fmt.Fprintf(r.out, "kernel %s  state %s  alive %s  session %d\n",
			st.KernelID, st.State, strconv.FormatBool(st.Alive), st.Serial)
	case "help", "h", "?":
		fmt.Fprintln(r.out, replHelp)
	default:
		err = fmt.Errorf("unknown command :%s (try :help)", name)
	}
	if err != nil {
		r.errorf("%v", err)
	}
	return false
}

func (r *repl) flush(ctx context.Context) {
	// let output already posted to the loop land first
	r.bridge.Loop().Do(ctx, func() {})
	if _, err := r.printer.Flush(); err != nil {
		r.errorf("%v", err)
	}
}

func (r *repl) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.printer.Flush()
		}
	}
}

// interrupts forwards Ctrl-C to the kernel while code runs. At the prompt
// readline consumes it instead.
func (r *repl) interrupts(ctx context.Context) {
	sigs := make(chan os.Signal, 1)
	signal.Reset(os.Interrupt)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			if err := r.bridge.Interrupt(ctx); err != nil && !errors.Is(err, bridge.ErrNotConnected) {
				r.errorf("%v", err)
			}
		}
	}
}

func (r *repl) errorf(format string, args ...any) {
	fmt.Fprintf(r.out, "error: "+format+"\n", args...)
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "ipybridge")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}

// terminalPrompter answers kernel questions on the terminal. It is called
// while the shell is blocked in a command, so the terminal is free.
type terminalPrompter struct {
	repl *repl
}

func (p *terminalPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	p.repl.flush(ctx)
	p.repl.rl.SetPrompt(question + " [y/N] ")
	defer p.repl.rl.SetPrompt(replPrompt)

	answer, err := p.repl.rl.Readline()
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func (p *terminalPrompter) Input(ctx context.Context, prompt string, password bool) (string, error) {
	p.repl.flush(ctx)
	if password {
		b, err := p.repl.rl.ReadPassword(prompt)
		return string(b), err
	}

	p.repl.rl.SetPrompt(prompt)
	defer p.repl.rl.SetPrompt(replPrompt)
	return p.repl.rl.Readline()
}

// completer feeds kernel completions to readline's tab handling.
type completer struct {
	ctx    context.Context
	bridge *bridge.Bridge
}

func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	ctx, cancel := context.WithTimeout(c.ctx, time.Second)
	defer cancel()

	text := string(line)
	col := len(string(line[:pos]))
	comp, err := c.bridge.Complete(ctx, text, col)
	if err != nil || comp.Start > col {
		return nil, 0
	}

	typed := text[comp.Start:col]
	var out [][]rune
	for _, m := range comp.Matches {
		if suffix, ok := strings.CutPrefix(m, typed); ok {
			out = append(out, []rune(suffix))
		}
	}
	return out, len([]rune(typed))
}
