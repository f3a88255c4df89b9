package rollback

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Confirmer asks an operator to approve a rollback. Anything other than
// (true, nil) cancels it.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Static answers every prompt with the same value. Used for --yes and for
// API callers that send an explicit confirm flag.
type Static bool

func (s Static) Confirm(context.Context, string) (bool, error) {
	return bool(s), nil
}

// Terminal prompts on Out and reads a y/yes answer from In. One Terminal
// keeps one buffered reader over In, so input typed ahead is kept for later
// prompts. Use it through a pointer.
//
// A blocked read cannot be interrupted. When ctx ends first, the read stays
// pending and the line it eventually returns answers the next prompt; no
// second reader is started.
type Terminal struct {
	In  io.Reader
	Out io.Writer

	mu      sync.Mutex
	reader  *bufio.Reader
	pending chan answer
}

type answer struct {
	line string
	err  error
}

func (t *Terminal) Confirm(ctx context.Context, prompt string) (bool, error) {
	if _, err := fmt.Fprintf(t.Out, "%s [y/N]: ", prompt); err != nil {
		return false, err
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-t.readLine():
		t.mu.Lock()
		t.pending = nil
		t.mu.Unlock()
		if a.err != nil && a.err != io.EOF {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

// readLine returns the channel of the in-flight read, starting one if none
// is pending.
func (t *Terminal) readLine() <-chan answer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		return t.pending
	}
	if t.reader == nil {
		t.reader = bufio.NewReader(t.In)
	}
	ch := make(chan answer, 1)
	t.pending = ch
	go func(r *bufio.Reader) {
		line, err := r.ReadString('\n')
		ch <- answer{line, err}
	}(t.reader)
	return ch
}
