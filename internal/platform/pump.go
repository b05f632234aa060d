package platform

import (
	"sync"
	"time"
)

// TickerPump is the portable Pump: a ticker plus a quit channel. Quit wins
// over a pending tick.
type TickerPump struct {
	ticker   *time.Ticker
	quit     chan struct{}
	quitOnce sync.Once
}

// NewTickerPump returns a pump ticking every interval.
func NewTickerPump(interval time.Duration) *TickerPump {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &TickerPump{
		ticker: time.NewTicker(interval),
		quit:   make(chan struct{}),
	}
}

func (p *TickerPump) Wait() bool {
	select {
	case <-p.quit:
		return false
	default:
	}
	select {
	case <-p.quit:
		return false
	case <-p.ticker.C:
		return true
	}
}

func (p *TickerPump) Quit() {
	p.quitOnce.Do(func() { close(p.quit) })
}

func (p *TickerPump) Close() {
	p.ticker.Stop()
}
