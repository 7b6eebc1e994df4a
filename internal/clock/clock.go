// Package clock abstrae la hora de pared para que el scheduler y el guard de
// estabilidad sean testeables sin dormir.
package clock

import (
	"sync"
	"time"
)

// Clock da la hora actual y canales de timer.
type Clock interface {
	Now() time.Time
	// After devuelve un canal que dispara una vez pasado d.
	After(d time.Duration) <-chan time.Time
}

// System es el reloj real.
type System struct{}

func (System) Now() time.Time                         { return time.Now() }
func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fake es un reloj de avance manual para tests. Advance mueve la hora actual
// y dispara en orden los timers que venzan.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at time.Time
	ch chan time.Time
}

// NewFake crea un reloj falso que empieza en t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{at: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.timers = append(f.timers, t)
	return t.ch
}

// Advance adelanta el reloj d y entrega los timers vencidos.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var due, remaining []*fakeTimer
	for _, t := range f.timers {
		if !t.at.After(now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	f.timers = remaining
	f.mu.Unlock()

	for _, t := range due {
		t.ch <- now
	}
}

// Set salta el reloj a t sin disparar timers; útil para montar tests.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
