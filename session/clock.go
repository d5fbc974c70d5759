package session

import "time"

// Clock abstrahiert Zeit und Timer, damit Rotation und Copy-Reset in Tests deterministisch sind.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	AfterFunc(d time.Duration, f func()) Timer
}

// Ticker ist der Teil von *time.Ticker, den die Session braucht.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer ist der Teil von *time.Timer, den die Session braucht.
type Timer interface {
	Stop() bool
}

// RealClock nutzt das time-Paket.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
