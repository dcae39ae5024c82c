package board

import "github.com/dkeye/CodeSync/internal/domain"

// History is the undo/redo stack of committed snapshots. snaps is never
// empty and index always points into it.
type History struct {
	snaps [][]domain.Element
	index int
}

func NewHistory() *History {
	return &History{snaps: [][]domain.Element{{}}}
}

// Push records a new snapshot after the cursor, discarding any redo future.
func (h *History) Push(elements []domain.Element) {
	h.snaps = append(h.snaps[:h.index+1], domain.CloneElements(elements))
	h.index++
}

func (h *History) Undo() ([]domain.Element, bool) {
	if h.index == 0 {
		return nil, false
	}
	h.index--
	return domain.CloneElements(h.snaps[h.index]), true
}

func (h *History) Redo() ([]domain.Element, bool) {
	if h.index >= len(h.snaps)-1 {
		return nil, false
	}
	h.index++
	return domain.CloneElements(h.snaps[h.index]), true
}

// Current returns a copy of the snapshot under the cursor.
func (h *History) Current() []domain.Element {
	return domain.CloneElements(h.snaps[h.index])
}

// Reset collapses the stack to a single empty snapshot.
func (h *History) Reset() {
	h.snaps = [][]domain.Element{{}}
	h.index = 0
}

func (h *History) Index() int { return h.index }
func (h *History) Len() int   { return len(h.snaps) }
