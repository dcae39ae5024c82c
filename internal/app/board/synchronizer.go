// Package board owns the canonical whiteboard state, its local undo history
// and full-state replication through the relay.
package board

import (
	"errors"
	"fmt"

	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("board: element not found")

type Config struct {
	Self func() domain.ConnectionID
	Out  core.Outbox
	// OnChange receives a copy of the elements after every local or remote change.
	OnChange func([]domain.Element)
	NewID    func() string
}

// Synchronizer is the single owner of the whiteboard. Renderers read copies
// and request changes through its methods. Calls must be serialized on the
// session loop.
type Synchronizer struct {
	cfg      Config
	elements []domain.Element
	history  *History

	// dirty marks live state ahead of the history cursor (a draft or drag).
	dirty bool
	seq   uint64
}

func New(cfg Config) *Synchronizer {
	if cfg.Self == nil {
		cfg.Self = func() domain.ConnectionID { return "" }
	}
	if cfg.OnChange == nil {
		cfg.OnChange = func([]domain.Element) {}
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Synchronizer{cfg: cfg, elements: []domain.Element{}, history: NewHistory()}
}

// Elements returns a read-only copy in z-order, front-most last.
func (s *Synchronizer) Elements() []domain.Element {
	return domain.CloneElements(s.elements)
}

func (s *Synchronizer) HistoryIndex() int { return s.history.Index() }
func (s *Synchronizer) HistoryLen() int   { return s.history.Len() }

// Add appends a finished element as one undoable action.
func (s *Synchronizer) Add(el domain.Element) (domain.Element, error) {
	el, err := s.prepare(el)
	if err != nil {
		return domain.Element{}, err
	}
	s.elements = append(s.elements, el)
	s.commit()
	return el, nil
}

// Begin starts an interactive element (a pen stroke or a shape being sized).
// Frames are broadcast live but only Commit records history.
func (s *Synchronizer) Begin(el domain.Element) (domain.Element, error) {
	el, err := s.prepare(el)
	if err != nil {
		return domain.Element{}, err
	}
	s.elements = append(s.elements, el)
	s.dirty = true
	s.publish()
	return el, nil
}

// Update replaces the in-progress element with the same id. If a remote
// update dropped it meanwhile, it is re-appended.
func (s *Synchronizer) Update(el domain.Element) error {
	if err := el.Validate(); err != nil {
		return err
	}
	el = el.Normalized()
	if i := s.indexOf(el.ID); i >= 0 {
		s.elements[i] = el
	} else {
		s.elements = append(s.elements, el)
	}
	s.dirty = true
	s.publish()
	return nil
}

// Drag shifts an element as a live frame of a move gesture.
func (s *Synchronizer) Drag(id string, dx, dy float64) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.elements[i] = s.elements[i].Translate(dx, dy)
	s.dirty = true
	s.publish()
	return nil
}

// Move shifts an element as one undoable action.
func (s *Synchronizer) Move(id string, dx, dy float64) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.elements[i] = s.elements[i].Translate(dx, dy)
	s.commit()
	return nil
}

// Erase removes an element as one undoable action.
func (s *Synchronizer) Erase(id string) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.elements = append(s.elements[:i:i], s.elements[i+1:]...)
	s.commit()
	return nil
}

// EraseAt erases the front-most element under p.
func (s *Synchronizer) EraseAt(p domain.Point) (domain.Element, bool) {
	el, ok := s.HitTest(p)
	if !ok {
		return domain.Element{}, false
	}
	_ = s.Erase(el.ID)
	return el, true
}

// Commit ends an interactive gesture, recording one history entry.
func (s *Synchronizer) Commit() {
	if !s.dirty {
		return
	}
	s.commit()
}

// Cancel abandons an interactive gesture and restores the last committed state.
func (s *Synchronizer) Cancel() {
	if !s.dirty {
		return
	}
	s.dirty = false
	s.elements = s.history.Current()
	s.publish()
}

// Clear empties the board and the history; it cannot be undone.
func (s *Synchronizer) Clear() {
	s.elements = []domain.Element{}
	s.history.Reset()
	s.dirty = false
	s.publish()
}

func (s *Synchronizer) Undo() bool {
	elements, ok := s.history.Undo()
	if !ok {
		return false
	}
	s.elements = elements
	s.dirty = false
	s.publish()
	return true
}

func (s *Synchronizer) Redo() bool {
	elements, ok := s.history.Redo()
	if !ok {
		return false
	}
	s.elements = elements
	s.dirty = false
	s.publish()
	return true
}

// HitTest returns the front-most element whose region contains p.
func (s *Synchronizer) HitTest(p domain.Point) (domain.Element, bool) {
	for i := len(s.elements) - 1; i >= 0; i-- {
		if s.elements[i].Contains(p) {
			return s.elements[i], true
		}
	}
	return domain.Element{}, false
}

// HandleDraw applies a remote WHITEBOARD_DRAW. Our own broadcasts, recognized
// by origin, are discarded. Remote state never enters local history.
func (s *Synchronizer) HandleDraw(p core.DrawPayload) {
	logger := log.With().Str("module", "app.board").Str("origin", string(p.Origin)).Uint64("seq", p.Seq).Logger()
	if self := s.cfg.Self(); self != "" && p.Origin == self {
		logger.Debug().Msg("echo discarded")
		return
	}
	for _, el := range p.Elements {
		if err := el.Validate(); err != nil {
			logger.Debug().Err(err).Msg("malformed whiteboard update ignored")
			return
		}
	}
	if p.Elements == nil {
		p.Elements = []domain.Element{}
	}
	s.elements = domain.CloneElements(p.Elements)
	for i := range s.elements {
		s.elements[i] = s.elements[i].Normalized()
	}
	s.cfg.OnChange(s.Elements())
}

func (s *Synchronizer) prepare(el domain.Element) (domain.Element, error) {
	if err := el.Validate(); err != nil {
		return domain.Element{}, err
	}
	if el.ID == "" {
		el.ID = s.cfg.NewID()
	}
	return el.Normalized(), nil
}

func (s *Synchronizer) commit() {
	s.history.Push(s.elements)
	s.dirty = false
	s.publish()
}

func (s *Synchronizer) indexOf(id string) int {
	for i := range s.elements {
		if s.elements[i].ID == id {
			return i
		}
	}
	return -1
}

// publish broadcasts the full state and notifies the renderer.
func (s *Synchronizer) publish() {
	s.seq++
	s.cfg.OnChange(s.Elements())
	msg, err := core.NewMessage(core.ActionWhiteboardDraw, core.DrawPayload{
		Elements: s.Elements(),
		Origin:   s.cfg.Self(),
		Seq:      s.seq,
	})
	if err == nil {
		err = s.cfg.Out.Send(msg)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "app.board").Msg("broadcast failed")
	}
}
