// Package combat tracks damage between actors and decides whether a kill by
// a relic holder is worthy enough to reset the holder's hunger timer.
package combat

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/state"
)

// Reasons reported in Result.Reason.
const (
	ReasonWorthy         = "worthy"
	ReasonEasyKill       = "easy_kill"
	ReasonBelowThreshold = "score_below_threshold"
	ReasonBelowMinimum   = "below_minimum_threshold"
	ReasonStaleDamage    = "stale_damage"
	ReasonNotHolder      = "not_holder"
	ReasonCombatDisabled = "combat_disabled"
	ReasonAwardsDisabled = "awards_disabled"
)

var killsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "relic",
	Subsystem: "combat",
	Name:      "kills_total",
	Help:      "Kills by relic holders, by scoring outcome.",
}, []string{"reason"})

// Components are the five bounded inputs of a kill score.
type Components struct {
	DamageOut  float64 `json:"damageOut"`
	DamageIn   float64 `json:"damageIn"`
	Gear       float64 `json:"gear"`
	Duration   float64 `json:"duration"`
	Deflection float64 `json:"deflection"`
}

// Result is the outcome of one kill resolution.
type Result struct {
	Worthy     bool       `json:"worthy"`
	Score      float64    `json:"score"`
	Components Components `json:"components"`
	Reason     string     `json:"reason"`

	RelicID          uuid.UUID `json:"relicId,omitempty"`
	DamageDealt      float64   `json:"damageDealt"`
	HoldMinutes      int64     `json:"holdMinutes"`
	MinimumDamage    float64   `json:"minimumDamage"`
	PreviousTimerEnd time.Time `json:"previousTimerEnd,omitempty"`
	NewTimerEnd      time.Time `json:"newTimerEnd,omitempty"`
}

type Engine struct {
	cfg    Config
	store  *state.Store
	hunger time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// New builds an engine; hunger is the full timer interval granted by a worthy kill.
func New(cfg Config, store *state.Store, hunger time.Duration, now func() time.Time, log zerolog.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:    cfg,
		store:  store,
		hunger: hunger,
		now:    now,
		log:    log.With().Str("component", "combat").Logger(),
	}
}

func (e *Engine) Config() Config { return e.cfg }

// RecordDamage stores a hit. Self damage and non-positive amounts are ignored.
func (e *Engine) RecordDamage(ev model.DamageEvent) bool {
	if !e.cfg.Enabled || !e.cfg.TrackDamage {
		return false
	}
	if ev.Attacker == ev.Victim || ev.Attacker == uuid.Nil || ev.Amount <= 0 {
		return false
	}
	now := e.now()
	e.store.RecordDamage(ev.Victim, ev.Attacker, ev.Amount, now)
	e.prune(now)
	return true
}

// RecordDeflection stores a special-defense trigger by the victim.
func (e *Engine) RecordDeflection(ev model.DeflectionEvent) bool {
	if !e.cfg.Enabled || !e.cfg.TrackDamage {
		return false
	}
	if ev.Attacker == ev.Victim || ev.Attacker == uuid.Nil {
		return false
	}
	now := e.now()
	e.store.RecordDeflection(ev.Victim, ev.Attacker, now)
	e.prune(now)
	return true
}

// Evaluate scores a kill without touching any holder record.
func (e *Engine) Evaluate(killer, victim uuid.UUID, victimArmor int, now time.Time) Result {
	out, hasOut := e.store.Damage(victim, killer)
	in, _ := e.store.Damage(killer, victim)
	defl, hasDefl := e.store.Deflection(victim, killer)

	scale := e.cfg.BaseDamage * e.cfg.DamageMultiplier
	c := Components{
		DamageOut: clamp01(ratio(out.Total, scale)),
		DamageIn:  clamp01(ratio(in.Total, scale)),
		Gear:      clamp01(ratio(float64(victimArmor), float64(e.cfg.ArmorPieces))),
	}
	if hasOut && out.LastHit.After(out.FirstHit) {
		c.Duration = clamp01(out.LastHit.Sub(out.FirstHit).Seconds() / e.cfg.StaleWindow.Seconds())
	}
	if hasDefl && now.Sub(defl.Last) <= e.cfg.DeflectionWindow {
		c.Deflection = clamp01(float64(defl.Count) / 2)
	}

	score := c.DamageOut*e.cfg.WeightDamageOut +
		c.DamageIn*e.cfg.WeightDamageIn +
		c.Gear*e.cfg.WeightGear +
		c.Duration*e.cfg.WeightDuration +
		c.Deflection*e.cfg.WeightDeflection

	r := Result{Score: score, Components: c, DamageDealt: out.Total}
	switch {
	case !hasOut || out.LastHit.Before(now.Add(-e.cfg.StaleWindow)):
		r.Reason = ReasonStaleDamage
	case score >= e.cfg.WorthyThreshold:
		r.Worthy = true
		r.Reason = ReasonWorthy
	case score <= e.cfg.EasyThreshold:
		r.Reason = ReasonEasyKill
	default:
		r.Reason = ReasonBelowThreshold
	}
	return r
}

// MinimumDamage is the escalating damage floor for a holder who has held for heldMinutes.
func (e *Engine) MinimumDamage(heldMinutes int64) float64 {
	return e.cfg.FloorBase + float64(heldMinutes)*e.cfg.FloorRate
}

// ResolveKill scores a kill by killer and, when it is worthy and clears the
// damage floor, resets the killer's timer to now + hunger. The victim's combat
// records are cleared whatever the outcome.
func (e *Engine) ResolveKill(killer, victim uuid.UUID, victimArmor int) Result {
	if !e.cfg.Enabled {
		return e.finish(victim, e.now(), Result{Reason: ReasonCombatDisabled})
	}
	now := e.now()
	var res Result
	found := false
	e.store.Holders.Update(killer, func(h state.Holder, ok bool) (state.Holder, bool) {
		if !ok {
			return h, false
		}
		found = true
		res = e.Evaluate(killer, victim, victimArmor, now)
		res.RelicID = h.RelicID
		res.PreviousTimerEnd = h.TimerEnd
		res.HoldMinutes = h.HoldMinutes(now)
		res.MinimumDamage = e.MinimumDamage(res.HoldMinutes)

		if !e.cfg.AwardKills {
			res.Worthy = false
			res.Reason = ReasonAwardsDisabled
			return h, true
		}
		if !res.Worthy {
			return h, true
		}
		if res.DamageDealt < res.MinimumDamage {
			res.Worthy = false
			res.Reason = ReasonBelowMinimum
			return h, true
		}

		h.TotalHoldMinutes = res.HoldMinutes
		h.TimerEnd = now.Add(e.hunger)
		h.LastKill = victim
		h.LastChance = false
		h.SessionStart = now
		res.NewTimerEnd = h.TimerEnd
		return h, true
	})
	if !found {
		res = Result{Reason: ReasonNotHolder}
	}
	return e.finish(victim, now, res)
}

func (e *Engine) finish(victim uuid.UUID, now time.Time, res Result) Result {
	e.store.ClearCombat(victim)
	e.prune(now)
	killsTotal.WithLabelValues(res.Reason).Inc()
	e.log.Debug().
		Str("victim", victim.String()).
		Str("reason", res.Reason).
		Float64("score", res.Score).
		Bool("worthy", res.Worthy).
		Msg("kill resolved")
	return res
}

// Clear drops every record involving actor, e.g. on disconnect.
func (e *Engine) Clear(actor uuid.UUID) {
	if !e.cfg.Enabled || !e.cfg.TrackDamage {
		return
	}
	e.store.ClearCombat(actor)
}

// Prune runs the periodic staleness prune.
func (e *Engine) Prune() state.PruneStats {
	return e.prune(e.now())
}

func (e *Engine) prune(now time.Time) state.PruneStats {
	return e.store.PruneCombat(now, e.cfg.FightGap, e.cfg.DeflectionWindow, e.cfg.MaxRecordsPerVictim)
}

func ratio(v, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	return v / scale
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 1:
		return 1
	default:
		return v
	}
}
