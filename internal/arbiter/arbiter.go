package arbiter

import (
	"time"

	"github.com/rs/zerolog"
)

// #region arbiter
// Arbiter grants temporary, priority-ordered ownership of the macro space.
type Arbiter struct {
	own    Ownership
	logger zerolog.Logger
	events []Event
}

// NewArbiter creates an arbiter with no owner.
func NewArbiter(logger zerolog.Logger) *Arbiter {
	return &Arbiter{
		own:    Ownership{Owner: SourceNone},
		logger: logger.With().Str("component", "arbiter").Logger(),
	}
}

// #endregion arbiter

// #region request
// Request asks for ownership for hold starting at now.
//   - free or expired slot: granted
//   - same source: hold extended
//   - higher-priority source: preempts immediately
//   - otherwise: denied
func (a *Arbiter) Request(src Source, now time.Time, hold time.Duration) Grant {
	if src == SourceNone {
		return Grant{Owner: a.Owner(now), Until: a.own.Until, Reason: "denied"}
	}
	cur := a.Owner(now)
	until := now.Add(hold)

	switch {
	case cur == SourceNone:
		a.set(src, until, "granted", now)
		return Grant{Granted: true, Owner: src, Until: until, Reason: "granted"}
	case cur == src:
		if until.After(a.own.Until) {
			a.own.Until = until
		}
		return Grant{Granted: true, Owner: src, Until: a.own.Until, Reason: "extended"}
	case Compare(src, cur) > 0:
		a.set(src, until, "preempted", now)
		return Grant{Granted: true, Owner: src, Until: until, Reason: "preempted"}
	}
	return Grant{Owner: cur, Until: a.own.Until, Reason: "denied"}
}

// Release drops ownership if src currently holds it.
func (a *Arbiter) Release(src Source, now time.Time) {
	if a.Owner(now) == src && src != SourceNone {
		a.set(SourceNone, time.Time{}, "released", now)
	}
}

// #endregion request

// #region accessors
// Owner returns the current owner, treating an expired hold as free.
func (a *Arbiter) Owner(now time.Time) Source {
	if a.own.Owner == SourceNone {
		return SourceNone
	}
	if !now.Before(a.own.Until) {
		a.set(SourceNone, time.Time{}, "expired", now)
		return SourceNone
	}
	return a.own.Owner
}

// CanWrite reports whether src currently owns the macro space.
func (a *Arbiter) CanWrite(src Source, now time.Time) bool {
	return src != SourceNone && a.Owner(now) == src
}

// Ownership returns the raw slot.
func (a *Arbiter) Ownership() Ownership {
	return a.own
}

// DrainEvents returns and clears buffered ownership changes.
func (a *Arbiter) DrainEvents() []Event {
	out := a.events
	a.events = nil
	return out
}

func (a *Arbiter) set(to Source, until time.Time, reason string, now time.Time) {
	from := a.own.Owner
	a.own = Ownership{Owner: to, Until: until}
	if from == to {
		return
	}
	a.events = append(a.events, Event{From: from, To: to, Reason: reason, At: now})
	a.logger.Debug().Str("from", string(from)).Str("to", string(to)).Str("reason", reason).Msg("ownership change")
}

// #endregion accessors
