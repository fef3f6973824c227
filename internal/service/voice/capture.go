package voice

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoTranscript means the user dismissed the prompt or the recognizer heard nothing.
var ErrNoTranscript = errors.New("no transcript captured")

const PromptText = "Say what you're looking for: "

// Recognizer converts speech into text. Implementations return ErrNoTranscript when nothing was heard.
type Recognizer interface {
	Recognize(ctx context.Context) (string, error)
}

// Capture produces at most one transcript per call, from a recognizer when one is
// configured and from a typed prompt otherwise.
//
// At most one line read is outstanding at a time. A read abandoned by a cancelled call
// is handed to the next call instead of being raced by a second reader.
type Capture struct {
	recognizer Recognizer
	in         *bufio.Reader
	out        io.Writer

	// sem serializes prompts; pending is only touched while holding it.
	sem     chan struct{}
	pending chan readResult
}

type readResult struct {
	line string
	err  error
}

func NewCapture(recognizer Recognizer, in io.Reader, out io.Writer) *Capture {
	c := &Capture{recognizer: recognizer, out: out, sem: make(chan struct{}, 1)}
	if in != nil {
		c.in = bufio.NewReader(in)
	}
	return c
}

func (c *Capture) Capture(ctx context.Context) (string, error) {
	if c.recognizer != nil {
		text, err := c.recognizer.Recognize(ctx)
		if err != nil {
			return "", err
		}
		return normalize(text)
	}
	return c.prompt(ctx)
}

func (c *Capture) prompt(ctx context.Context) (string, error) {
	if c.in == nil {
		return "", ErrNoTranscript
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-c.sem }()

	if c.pending == nil {
		done := make(chan readResult, 1)
		go func() {
			line, err := c.in.ReadString('\n')
			done <- readResult{line: line, err: err}
		}()
		c.pending = done
	}

	if c.out != nil {
		fmt.Fprint(c.out, PromptText)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-c.pending:
		c.pending = nil
		if r.err != nil && !errors.Is(r.err, io.EOF) {
			return "", fmt.Errorf("failed to read transcript: %w", r.err)
		}
		return normalize(r.line)
	}
}

func normalize(text string) (string, error) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "", ErrNoTranscript
	}
	return text, nil
}
