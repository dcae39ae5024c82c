package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dkeye/CodeSync/internal/app/board"
	"github.com/dkeye/CodeSync/internal/app/orch"
	"github.com/dkeye/CodeSync/internal/domain"
)

var errQuit = errors.New("quit")

// session is the slice of orch.Session the REPL drives.
type session interface {
	EditText(text string)
	SetLanguage(lang domain.Language) error
	Board(fn func(b *board.Synchronizer))
	ToggleMic(ctx context.Context)
	SetSpeaking(speaking bool)
	Snapshot() orch.Snapshot
	ExportSVG(w io.Writer) error
}

type style struct {
	stroke string
	fill   string
	width  float64
}

type repl struct {
	sess  session
	out   *consoleView
	style style
}

func newREPL(sess session, out *consoleView) *repl {
	return &repl{sess: sess, out: out, style: style{stroke: "#000000", fill: "none", width: 2}}
}

// Run executes commands line by line until quit, EOF or ctx is done.
func (r *repl) Run(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := r.exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return
				}
				r.out.printf("! %v\n", err)
			}
		}
	}
}

func (r *repl) exec(ctx context.Context, line string) error {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	args := strings.Fields(rest)
	switch cmd {
	case "":
		return nil
	case "quit", "exit":
		return errQuit
	case "help":
		r.out.printf("%s\n", helpText)
		return nil
	case "code":
		r.sess.EditText(unescape(rest))
		return nil
	case "append":
		text := r.sess.Snapshot().Document.Text
		if text != "" && !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		r.sess.EditText(text + unescape(rest))
		return nil
	case "show":
		doc := r.sess.Snapshot().Document
		r.out.printf("[%s]\n%s\n", doc.Language, doc.Text)
		return nil
	case "lang":
		if len(args) != 1 {
			return errors.New("usage: lang <language>")
		}
		lang, err := domain.ParseLanguage(args[0])
		if err != nil {
			return err
		}
		return r.sess.SetLanguage(lang)
	case "color":
		if len(args) != 1 {
			return errors.New("usage: color <stroke>")
		}
		r.style.stroke = args[0]
		return nil
	case "fill":
		if len(args) != 1 {
			return errors.New("usage: fill <color|none>")
		}
		r.style.fill = args[0]
		return nil
	case "width":
		v, err := floats(args, 1)
		if err != nil {
			return err
		}
		r.style.width = v[0]
		return nil
	case "rect":
		v, err := floats(args, 4)
		if err != nil {
			return err
		}
		return r.add(domain.Element{Kind: domain.KindRect, X: v[0], Y: v[1], Width: v[2], Height: v[3]})
	case "circle":
		v, err := floats(args, 3)
		if err != nil {
			return err
		}
		return r.add(domain.Element{Kind: domain.KindCircle, CX: v[0], CY: v[1], R: v[2]})
	case "text":
		if len(args) < 3 {
			return errors.New("usage: text <x> <y> <words...>")
		}
		v, err := floats(args[:2], 2)
		if err != nil {
			return err
		}
		return r.add(domain.Element{
			Kind: domain.KindText, X: v[0], Y: v[1],
			Text: strings.Join(args[2:], " "), FontSize: 16, FontFamily: "sans-serif",
		})
	case "pen":
		return r.pen(args)
	case "move":
		if len(args) != 3 {
			return errors.New("usage: move <id> <dx> <dy>")
		}
		v, err := floats(args[1:], 2)
		if err != nil {
			return err
		}
		return r.board(func(b *board.Synchronizer) error { return b.Move(args[0], v[0], v[1]) })
	case "erase":
		if len(args) == 1 {
			return r.board(func(b *board.Synchronizer) error { return b.Erase(args[0]) })
		}
		v, err := floats(args, 2)
		if err != nil {
			return errors.New("usage: erase <id> | erase <x> <y>")
		}
		return r.board(func(b *board.Synchronizer) error {
			if _, ok := b.EraseAt(domain.Point{X: v[0], Y: v[1]}); !ok {
				return board.ErrNotFound
			}
			return nil
		})
	case "undo":
		return r.board(func(b *board.Synchronizer) error {
			if !b.Undo() {
				return errors.New("nothing to undo")
			}
			return nil
		})
	case "redo":
		return r.board(func(b *board.Synchronizer) error {
			if !b.Redo() {
				return errors.New("nothing to redo")
			}
			return nil
		})
	case "clear":
		return r.board(func(b *board.Synchronizer) error { b.Clear(); return nil })
	case "elements":
		for _, el := range r.sess.Snapshot().Elements {
			r.out.printf("%s %s\n", el.ID, el.Kind)
		}
		return nil
	case "svg":
		if len(args) == 0 {
			var buf bytes.Buffer
			if err := r.sess.ExportSVG(&buf); err != nil {
				return err
			}
			r.out.printf("%s\n", buf.String())
			return nil
		}
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		if err := r.sess.ExportSVG(f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	case "mic":
		r.sess.ToggleMic(ctx)
		return nil
	case "speak":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: speak on|off")
		}
		r.sess.SetSpeaking(args[0] == "on")
		return nil
	case "status":
		r.status()
		return nil
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

// pen draws a stroke through the given points as one interactive gesture.
func (r *repl) pen(args []string) error {
	pts, err := points(args)
	if err != nil {
		return err
	}
	if len(pts) < 2 {
		return errors.New("usage: pen <x,y> <x,y> ...")
	}
	return r.board(func(b *board.Synchronizer) error {
		el, err := b.Begin(domain.Element{
			Kind: domain.KindPath, Path: domain.FormatPath(pts[:1]),
			Stroke: r.style.stroke, StrokeWidth: r.style.width, Fill: "none",
		})
		if err != nil {
			return err
		}
		for i := 2; i <= len(pts); i++ {
			el.Path = domain.FormatPath(pts[:i])
			if err := b.Update(el); err != nil {
				b.Cancel()
				return err
			}
		}
		b.Commit()
		r.out.printf("%s\n", el.ID)
		return nil
	})
}

func (r *repl) add(el domain.Element) error {
	el.Stroke = r.style.stroke
	el.StrokeWidth = r.style.width
	el.Fill = r.style.fill
	if el.Kind == domain.KindText {
		el.Fill = r.style.stroke
	}
	return r.board(func(b *board.Synchronizer) error {
		added, err := b.Add(el)
		if err != nil {
			return err
		}
		r.out.printf("%s\n", added.ID)
		return nil
	})
}

func (r *repl) board(fn func(b *board.Synchronizer) error) error {
	var err error
	r.sess.Board(func(b *board.Synchronizer) { err = fn(b) })
	return err
}

func (r *repl) status() {
	snap := r.sess.Snapshot()
	r.out.printf("self %s, mic %t, language %s, %d elements\n", snap.Self, snap.MicOn, snap.Document.Language, len(snap.Elements))
	for _, p := range snap.Roster {
		state := "-"
		if st, ok := snap.Connections[p.ID]; ok {
			state = st.String()
		}
		r.out.printf("  %s %s %s\n", p.ID, p.Username, state)
	}
}

func floats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		out[i] = v
	}
	return out, nil
}

func points(args []string) ([]domain.Point, error) {
	out := make([]domain.Point, 0, len(args))
	for _, a := range args {
		xs, ys, ok := strings.Cut(a, ",")
		if !ok {
			return nil, fmt.Errorf("bad point %q", a)
		}
		v, err := floats([]string{xs, ys}, 2)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Point{X: v[0], Y: v[1]})
	}
	return out, nil
}

// unescape turns literal \n and \t into control characters.
func unescape(s string) string {
	return strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(s)
}

const helpText = `code <text>            replace the document (\n for newlines)
append <text>          append a line
show                   print the document
lang <language>        javascript python go cpp java html css
color|fill|width <v>   drawing style
rect <x> <y> <w> <h>   circle <cx> <cy> <r>   text <x> <y> <words>
pen <x,y> <x,y> ...    freehand stroke
move <id> <dx> <dy>    erase <id> | erase <x> <y>
undo  redo  clear  elements  svg [file]
mic                    toggle microphone
speak on|off           speaking indicator
status  quit`
