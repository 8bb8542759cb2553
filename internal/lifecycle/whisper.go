package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/state"
)

// Whisper sends at most one narration line to each online holder: the last
// chance line once per timer cycle, a warning when the timer is nearly out,
// or occasionally an idle line. It returns how many were sent.
func (e *Engine) Whisper() int {
	now := e.now()
	sent := 0
	for _, actor := range e.store.Holders.Keys() {
		if !e.world.Online(actor) {
			continue
		}
		var (
			category string
			relic    uuid.UUID
			left     time.Duration
		)
		e.store.Holders.Update(actor, func(h state.Holder, ok bool) (state.Holder, bool) {
			if !ok {
				return h, false
			}
			relic = h.RelicID
			left = h.TimerEnd.Sub(now)
			category = e.whisperFor(h, left, now)
			if category == "" {
				return h, true
			}
			if category == "whisper.last_chance" {
				h.LastChance = true
			}
			h.LastWhisper = now
			return h, true
		})
		if category == "" {
			continue
		}
		e.tell(actor, relic, category, map[string]any{
			"Name":      e.world.Name(actor),
			"Remaining": left.Round(time.Second).String(),
		})
		sent++
	}
	return sent
}

func (e *Engine) whisperFor(h state.Holder, left time.Duration, now time.Time) string {
	warnBelow := time.Duration(float64(e.cfg.Hunger) * e.cfg.WarningFraction)
	switch {
	case left <= 0:
		return ""
	case left <= e.cfg.LastChance:
		if h.LastChance {
			return ""
		}
		return "whisper.last_chance"
	case left <= warnBelow:
		if now.Sub(h.LastWhisper) <= e.cfg.WarningRepeat {
			return ""
		}
		return "whisper.warning"
	case !h.LastChance && e.rand() < e.cfg.IdleWhisperChance:
		return "whisper.idle"
	}
	return ""
}
