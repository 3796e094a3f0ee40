package demo

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// Census counts the cats on the cron schedule from Settings.CensusSchedule.
type Census struct {
	config *ConfigService
	cats   *CatsService
	cron   *cron.Cron

	runs atomic.Int64
	last atomic.Int64
}

func NewCensus(config *ConfigService, cats *CatsService) *Census {
	return &Census{config: config, cats: cats, cron: cron.New()}
}

// OnModuleInit registers the census job and starts the scheduler.
func (c *Census) OnModuleInit(ctx context.Context) error {
	schedule := c.config.Settings().CensusSchedule
	if schedule == "" {
		return nil
	}
	if _, err := c.cron.AddFunc(schedule, func() { c.Count() }); err != nil {
		return fmt.Errorf("invalid census schedule %q: %w", schedule, err)
	}
	c.cron.Start()
	return nil
}

// OnModuleDestroy stops the scheduler and waits for a running census.
func (c *Census) OnModuleDestroy(ctx context.Context) error {
	stopped := c.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count records the current number of cats.
func (c *Census) Count() int {
	n := len(c.cats.List())
	c.last.Store(int64(n))
	c.runs.Add(1)
	return n
}

func (c *Census) Runs() int64 { return c.runs.Load() }

// Last is the result of the latest count.
func (c *Census) Last() int { return int(c.last.Load()) }
