// Package pipeline runs the forge's enrichment workers and the bulk writer
// feeding the relational store.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smartpixl/smartpixl/internal/enrich"
	"github.com/smartpixl/smartpixl/internal/handoff"
	"github.com/smartpixl/smartpixl/internal/hit"
	"github.com/smartpixl/smartpixl/internal/metrics"
)

// Enricher is one enrichment step. A returned error skips the step for this
// hit only; the hit continues through the remaining steps.
type Enricher interface {
	Enrich(ctx context.Context, ec *enrich.Ctx) error
}

// Step binds an Enricher to its metrics identity.
type Step struct {
	Name string
	Tier string
	Fn   Enricher
}

// Pipeline fans the forge input queue out to workerCount goroutines, runs
// every step over each hit in order, and hands the stamped hit to the bulk
// writer channel.
//
// Tier 1 and 2 steps run in declaration order. Of tier 3, the contradiction
// matrix runs before lead-quality scoring because the score reads the
// contradiction count; the dead-internet index runs last for the same
// reason.
type Pipeline struct {
	steps       []Step
	in          *handoff.Queue
	out         chan<- *hit.Hit
	workerCount int
	logger      *zap.Logger
}

func New(steps []Step, in *handoff.Queue, out chan<- *hit.Hit, workerCount int, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		steps:       steps,
		in:          in,
		out:         out,
		workerCount: workerCount,
		logger:      logger,
	}
}

// Run blocks until ctx is cancelled and every worker has stopped.
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	logger := p.logger.With(zap.Int("worker", id))
	for {
		h, ok := p.in.Dequeue(ctx)
		if !ok {
			return
		}
		p.process(ctx, logger, h)

		select {
		case p.out <- h:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) process(ctx context.Context, logger *zap.Logger, h *hit.Hit) {
	defer func() {
		// A panicking step must not take the worker down; the hit keeps the
		// stamps it accumulated so far. The pause keeps a persistent panic
		// from spinning the worker hot.
		if r := recover(); r != nil {
			logger.Error("enrichment panic", zap.Any("panic", r))
			time.Sleep(time.Second)
		}
	}()

	ec := enrich.NewCtx(h)

	tier := ""
	tierStart := time.Now()
	for _, step := range p.steps {
		if step.Tier != tier {
			if tier != "" {
				metrics.EnrichDuration.WithLabelValues(tier).Observe(time.Since(tierStart).Seconds())
			}
			tier = step.Tier
			tierStart = time.Now()
		}
		if err := step.Fn.Enrich(ctx, ec); err != nil {
			metrics.EnrichErrorsTotal.WithLabelValues(step.Name).Inc()
			logger.Warn("enrichment step failed",
				zap.String("step", step.Name),
				zap.String("address", h.Address),
				zap.Error(err),
			)
		}
	}
	if tier != "" {
		metrics.EnrichDuration.WithLabelValues(tier).Observe(time.Since(tierStart).Seconds())
	}
}

// Steps builds the full step list in execution order from the constructed
// enrichers.
func Steps(
	botUA enrich.BotUA,
	uaParse *enrich.UAParse,
	rdns *enrich.RDNS,
	offlineGeo *enrich.OfflineGeo,
	onlineGeo *enrich.OnlineGeo,
	whois *enrich.Whois,
	sessions *enrich.Sessions,
	crossCustomer *enrich.CrossCustomer,
	replay *enrich.Replay,
	deadInternet *enrich.DeadInternet,
) []Step {
	return []Step{
		{Name: "bot_ua", Tier: "1", Fn: botUA},
		{Name: "ua_parse", Tier: "1", Fn: uaParse},
		{Name: "rdns", Tier: "1", Fn: rdns},
		{Name: "offline_geo", Tier: "1", Fn: offlineGeo},
		{Name: "online_geo", Tier: "1", Fn: onlineGeo},
		{Name: "whois", Tier: "1", Fn: whois},
		{Name: "sessions", Tier: "2", Fn: sessions},
		{Name: "cross_customer", Tier: "2", Fn: crossCustomer},
		{Name: "affluence", Tier: "2", Fn: enrich.Affluence{}},
		{Name: "contradictions", Tier: "3", Fn: enrich.Contradictions{}},
		{Name: "cultural", Tier: "3", Fn: enrich.Cultural{}},
		{Name: "device_age", Tier: "3", Fn: enrich.NewDeviceAge()},
		{Name: "replay", Tier: "3", Fn: replay},
		{Name: "lead_quality", Tier: "3", Fn: enrich.LeadQuality{}},
		{Name: "dead_internet", Tier: "3", Fn: deadInternet},
	}
}
