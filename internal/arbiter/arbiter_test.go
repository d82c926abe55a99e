package arbiter

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// #region arbiter-tests

func TestCompareTotalOrder(t *testing.T) {
	order := []Source{SourceNone, SourceRuntime, SourceAI, SourceHuman}
	for i := range order {
		for j := range order {
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			assert.Equal(t, want, Compare(order[i], order[j]), "%s vs %s", order[i], order[j])
		}
	}
}

func TestRequestGrantExtendPreemptDeny(t *testing.T) {
	a := NewArbiter(zerolog.Nop())

	g := a.Request(SourceRuntime, t0, time.Second)
	assert.Equal(t, "granted", g.Reason)

	g = a.Request(SourceRuntime, t0.Add(500*time.Millisecond), time.Second)
	assert.Equal(t, "extended", g.Reason)
	assert.Equal(t, t0.Add(1500*time.Millisecond), g.Until)

	g = a.Request(SourceAI, t0.Add(600*time.Millisecond), time.Second)
	assert.Equal(t, "preempted", g.Reason)
	assert.Equal(t, SourceAI, a.Owner(t0.Add(700*time.Millisecond)))

	g = a.Request(SourceRuntime, t0.Add(700*time.Millisecond), time.Second)
	assert.False(t, g.Granted)
	assert.Equal(t, "denied", g.Reason)
	assert.Equal(t, SourceAI, g.Owner)
}

func TestExpiredHoldFreesSlot(t *testing.T) {
	a := NewArbiter(zerolog.Nop())
	a.Request(SourceHuman, t0, time.Second)
	assert.Equal(t, SourceNone, a.Owner(t0.Add(time.Second)))

	g := a.Request(SourceRuntime, t0.Add(time.Second), time.Second)
	assert.True(t, g.Granted)
}

func TestHumanWinsRegardlessOfOrder(t *testing.T) {
	orders := [][]Source{
		{SourceRuntime, SourceHuman},
		{SourceHuman, SourceRuntime},
	}
	for _, order := range orders {
		a := NewArbiter(zerolog.Nop())
		now := t0
		for _, src := range order {
			a.Request(src, now, time.Second)
			now = now.Add(10 * time.Millisecond)
		}
		assert.Equal(t, SourceHuman, a.Owner(now), "order %v", order)
	}
}

func TestEventsRecordChanges(t *testing.T) {
	a := NewArbiter(zerolog.Nop())
	a.Request(SourceAI, t0, time.Second)
	a.Request(SourceAI, t0, time.Second)
	a.Request(SourceHuman, t0.Add(time.Millisecond), time.Second)
	a.Release(SourceHuman, t0.Add(2*time.Millisecond))

	events := a.DrainEvents()
	require.Len(t, events, 3)
	assert.Equal(t, "granted", events[0].Reason)
	assert.Equal(t, "preempted", events[1].Reason)
	assert.Equal(t, SourceAI, events[1].From)
	assert.Equal(t, "released", events[2].Reason)
	assert.Empty(t, a.DrainEvents())
}

func TestNoneCannotOwn(t *testing.T) {
	a := NewArbiter(zerolog.Nop())
	g := a.Request(SourceNone, t0, time.Second)
	assert.False(t, g.Granted)
	assert.False(t, a.CanWrite(SourceNone, t0))
}

// #endregion arbiter-tests

// #region bank-tests

func newBank() *Bank {
	return NewBank(DefaultConfig(), NewArbiter(zerolog.Nop()), map[string]float64{"energy": 0.2, "color": 0.5})
}

func TestBankWriteRespectsOwnership(t *testing.T) {
	b := newBank()
	assert.True(t, b.Write(SourceAI, "energy", 0.6, t0))
	assert.False(t, b.Write(SourceRuntime, "energy", 0.1, t0.Add(time.Millisecond)))
	assert.Equal(t, 0.6, b.Values()["energy"])
}

func TestBankWriteClamps(t *testing.T) {
	b := newBank()
	b.Write(SourceRuntime, "energy", 3, t0)
	assert.Equal(t, 1.0, b.Values()["energy"])
}

func TestAIMorphInterpolates(t *testing.T) {
	b := newBank()
	require.True(t, b.StartMorph(map[string]float64{"energy": 1.0}, time.Second, 0, t0))

	b.StepAI(t0.Add(500 * time.Millisecond))
	assert.InDelta(t, 0.6, b.Values()["energy"], 1e-9)

	b.StepAI(t0.Add(999 * time.Millisecond))
	assert.InDelta(t, 1.0, b.Values()["energy"], 0.01)
}

func TestHumanEditResetsAIAndSyncsBaseline(t *testing.T) {
	b := newBank()
	require.True(t, b.StartMorph(map[string]float64{"energy": 1.0}, 2*time.Second, time.Second, t0))
	b.StepAI(t0.Add(time.Second))

	b.HumanEdit("color", 0.9, t0.Add(1100*time.Millisecond))
	ai := b.AI()
	assert.True(t, ai.MorphUntil.IsZero())
	assert.True(t, ai.HoldUntil.IsZero())
	assert.Nil(t, ai.Target)
	assert.Equal(t, b.Values(), ai.Baseline)

	// The AI is locked out during the human hold.
	assert.False(t, b.StepAI(t0.Add(1200*time.Millisecond)))
	assert.False(t, b.StartMorph(map[string]float64{"color": 0}, time.Second, 0, t0.Add(1300*time.Millisecond)))

	// After the hold the AI resumes from the user's values: no jump.
	resume := t0.Add(1100*time.Millisecond + DefaultConfig().HumanHold)
	before := b.Values()
	require.True(t, b.StartMorph(map[string]float64{"color": 0}, time.Second, 0, resume))
	b.StepAI(resume)
	assert.Equal(t, before, b.Values())
}

func TestBankNamesSorted(t *testing.T) {
	b := newBank()
	assert.Equal(t, []string{"color", "energy"}, b.Names())
}

// #endregion bank-tests

func TestBankRestoreTakesNoOwnership(t *testing.T) {
	b := newBank()
	b.Restore(map[string]float64{"energy": 0.9, "fresh": 2})
	assert.Equal(t, 0.9, b.Values()["energy"])
	assert.Equal(t, 1.0, b.Values()["fresh"])
	assert.Equal(t, 0.9, b.AI().Baseline["energy"])
	assert.Equal(t, SourceNone, b.arb.Owner(t0))
}
