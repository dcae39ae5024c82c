package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/dkeye/CodeSync/internal/domain"
)

// consoleView prints session notifications. The REPL shares the writer.
type consoleView struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsoleView(w io.Writer) *consoleView {
	return &consoleView{w: w}
}

func (v *consoleView) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.w, format, args...)
}

func (v *consoleView) RosterChanged(r domain.Roster) {
	v.printf("* members (%d):", len(r))
	for _, p := range r {
		mark := ""
		if p.Speaking {
			mark = " (speaking)"
		}
		v.printf(" %s%s", p.Username, mark)
	}
	v.printf("\n")
}

func (v *consoleView) DocumentChanged(d domain.SharedDocument) {
	v.printf("* code [%s], %d bytes\n", d.Language, len(d.Text))
}

func (v *consoleView) BoardChanged(els []domain.Element) {
	v.printf("* board: %d elements\n", len(els))
}

func (v *consoleView) MediaError(err error) {
	v.printf("! microphone: %v\n", err)
}

func (v *consoleView) Disconnected(err error) {
	v.printf("! disconnected: %v\n", err)
}
