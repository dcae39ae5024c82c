// Package textsync replicates the shared editor text and language with a
// debounced last-writer-wins broadcast.
package textsync

import (
	"time"

	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultDebounce = 300 * time.Millisecond

type Config struct {
	Out       core.Outbox
	Scheduler core.Scheduler
	Debounce  time.Duration
	// OnChange is called after a remote update replaced the local document.
	OnChange func(domain.SharedDocument)
}

// Synchronizer owns the local SharedDocument copy. Methods must be called
// from the session loop; the scheduler is expected to fire there too.
type Synchronizer struct {
	cfg Config

	doc               domain.SharedDocument
	lastBroadcastText string
	broadcastOnce     bool

	timer core.Timer
	// gen invalidates a timer that fired after being superseded or stopped.
	gen     uint64
	stopped bool
}

func New(cfg Config) *Synchronizer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = core.WallClock{}
	}
	if cfg.OnChange == nil {
		cfg.OnChange = func(domain.SharedDocument) {}
	}
	return &Synchronizer{cfg: cfg, doc: domain.NewSharedDocument()}
}

func (s *Synchronizer) Document() domain.SharedDocument { return s.doc }

// Edit applies a local edit immediately and (re)arms the debounce timer so
// only the last text of a typing burst goes out.
func (s *Synchronizer) Edit(text string) {
	if s.stopped {
		return
	}
	s.doc.Text = text
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.cfg.Scheduler.AfterFunc(s.cfg.Debounce, func() { s.flush(gen) })
}

// SetLanguage applies and broadcasts a language change without debounce.
func (s *Synchronizer) SetLanguage(lang domain.Language) error {
	if _, err := domain.ParseLanguage(string(lang)); err != nil {
		return err
	}
	if s.stopped {
		return nil
	}
	s.doc.Language = lang
	s.send(core.ActionLanguageChange, core.LanguagePayload{Language: string(lang)})
	return nil
}

// HandleCode applies a remote CODE_CHANGE. Text equal to the local copy is
// our own echo (or a no-op) and is discarded. A remote replacement cancels
// any pending local broadcast, so the remote text is never re-sent as ours.
func (s *Synchronizer) HandleCode(p core.CodePayload) {
	if p.Text == s.doc.Text {
		log.Debug().Str("module", "app.textsync").Msg("echo discarded")
		return
	}
	s.doc.Text = p.Text
	s.cancel()
	// Peers now hold p.Text, so our last broadcast no longer describes them.
	s.broadcastOnce = false
	s.cfg.OnChange(s.doc)
}

func (s *Synchronizer) HandleLanguage(p core.LanguagePayload) {
	lang, err := domain.ParseLanguage(p.Language)
	if err != nil {
		log.Debug().Str("module", "app.textsync").Str("language", p.Language).Msg("unknown language ignored")
		return
	}
	if lang == s.doc.Language {
		return
	}
	s.doc.Language = lang
	s.cfg.OnChange(s.doc)
}

// Stop cancels a pending broadcast and rejects further local edits.
func (s *Synchronizer) Stop() {
	s.stopped = true
	s.cancel()
}

func (s *Synchronizer) cancel() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Synchronizer) flush(gen uint64) {
	if gen != s.gen || s.stopped {
		return
	}
	s.timer = nil
	text := s.doc.Text
	if s.broadcastOnce && text == s.lastBroadcastText {
		return
	}
	if s.send(core.ActionCodeChange, core.CodePayload{Text: text}) {
		s.lastBroadcastText = text
		s.broadcastOnce = true
	}
}

func (s *Synchronizer) send(action core.Action, payload any) bool {
	msg, err := core.NewMessage(action, payload)
	if err == nil {
		err = s.cfg.Out.Send(msg)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "app.textsync").Str("action", string(action)).Msg("broadcast failed")
		return false
	}
	return true
}
