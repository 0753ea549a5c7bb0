package completion

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Pacer spaces requests per model. The spacing is factor × 60s / rpm, so a
// factor of 3 keeps a batch at a third of the deployment's allowance.
type Pacer struct {
	factor float64
	rpm    map[string]int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPacer creates a Pacer. Models without an rpm entry are not paced.
func NewPacer(factor float64, rpm map[string]int) *Pacer {
	return &Pacer{
		factor:   factor,
		rpm:      rpm,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Interval returns the minimum spacing between requests to model.
func (p *Pacer) Interval(model string) time.Duration {
	if p == nil || p.factor <= 0 {
		return 0
	}
	rpm := p.lookup(model)
	if rpm <= 0 {
		return 0
	}
	return time.Duration(p.factor * float64(time.Minute) / float64(rpm))
}

// lookup matches exactly, then by longest configured prefix.
func (p *Pacer) lookup(model string) int {
	if n, ok := p.rpm[model]; ok {
		return n
	}
	best, n := "", 0
	for name, v := range p.rpm {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best, n = name, v
		}
	}
	return n
}

// Wait blocks until a request to model may be sent.
func (p *Pacer) Wait(ctx context.Context, model string) error {
	lim := p.limiter(model)
	if lim == nil {
		return nil
	}
	if err := lim.Wait(ctx); err != nil {
		return eris.Wrapf(err, "completion: pace %s", model)
	}
	return nil
}

func (p *Pacer) limiter(model string) *rate.Limiter {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if lim, ok := p.limiters[model]; ok {
		return lim
	}
	var lim *rate.Limiter
	if every := p.Interval(model); every > 0 {
		lim = rate.NewLimiter(rate.Every(every), 1)
	}
	p.limiters[model] = lim
	return lim
}
