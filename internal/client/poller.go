package client

import (
	"context"
	"sync"
	"time"

	"erp-server/internal/core"
)

const DefaultPollInterval = 30 * time.Second

// NotificationSnapshot is what one poll tick observed.
type NotificationSnapshot struct {
	Notifications core.Page[core.Notification]
	Unread        int64
}

// Poller refreshes notifications on a fixed interval. Each tick issues exactly
// one list request and one unread-count request, even when one of them fails.
type Poller struct {
	client   *Client
	interval time.Duration
	onTick   func(NotificationSnapshot, error)
}

// NewPoller returns a poller that hands every tick's result to onTick. A
// non-positive interval means DefaultPollInterval.
func NewPoller(c *Client, interval time.Duration, onTick func(NotificationSnapshot, error)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{client: c, interval: interval, onTick: onTick}
}

// Run polls once immediately and then every interval until ctx is done. A tick
// that has started always completes both of its requests, and no tick starts
// once ctx is done, so nothing is in flight or issued after Run returns.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	reqCtx := context.WithoutCancel(ctx)

	var (
		snap              NotificationSnapshot
		listErr, countErr error
		wg                sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		snap.Notifications, listErr = p.client.Notifications(reqCtx, false)
	}()
	go func() {
		defer wg.Done()
		snap.Unread, countErr = p.client.UnreadCount(reqCtx)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		return
	}
	err := listErr
	if err == nil {
		err = countErr
	}
	p.onTick(snap, err)
}
