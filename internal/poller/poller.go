// Package poller keeps exactly one status poll task alive for the selected device.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/CerneaMihnea/smart-valve-control/internal/domain"

	"go.uber.org/zap"
)

type StatusReader interface {
	GetStatus(ctx context.Context, deviceID string) (domain.DeviceStatus, error)
}

// Reading latest poll result for the selected device
type Reading struct {
	DeviceID string               `json:"device_id"`
	Status   *domain.DeviceStatus `json:"status,omitempty"`
	Error    string               `json:"error,omitempty"`
	At       time.Time            `json:"at"`
	Polls    int                  `json:"polls"`
}

type task struct {
	deviceID string
	cancel   context.CancelFunc
	done     chan struct{}
}

type Poller struct {
	reader   StatusReader
	interval time.Duration
	logger   *zap.Logger

	// sel serializes Select/Stop so cancel+replace is one step
	sel sync.Mutex

	mu     sync.Mutex
	cur    *task
	latest *Reading
}

func New(reader StatusReader, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{reader: reader, interval: interval, logger: logger}
}

// Select cancels the running poll task, waits for it to exit, then starts polling deviceID.
// An empty deviceID only cancels.
func (p *Poller) Select(deviceID string) {
	p.sel.Lock()
	defer p.sel.Unlock()

	p.stopLocked()
	if deviceID == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{deviceID: deviceID, cancel: cancel, done: make(chan struct{})}
	p.mu.Lock()
	p.cur = t
	p.latest = &Reading{DeviceID: deviceID}
	p.mu.Unlock()

	go p.run(ctx, t)
	p.logger.Debug("Status polling started", zap.String("device_id", deviceID), zap.Duration("interval", p.interval))
}

// Stop cancels the poll task, if any.
func (p *Poller) Stop() {
	p.sel.Lock()
	defer p.sel.Unlock()
	p.stopLocked()
}

// Current selected device id ("" when idle)
func (p *Poller) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return ""
	}
	return p.cur.deviceID
}

// Latest reading of the selected device; ok is false when nothing is selected.
func (p *Poller) Latest() (Reading, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return Reading{}, false
	}
	r := *p.latest
	return r, true
}

func (p *Poller) stopLocked() {
	p.mu.Lock()
	t := p.cur
	p.cur = nil
	p.latest = nil
	p.mu.Unlock()
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (p *Poller) run(ctx context.Context, t *task) {
	defer close(t.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// 首次立即查询一次
	p.poll(ctx, t)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, t)
		}
	}
}

func (p *Poller) poll(ctx context.Context, t *task) {
	st, err := p.reader.GetStatus(ctx, t.deviceID)
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != t {
		return
	}
	r := Reading{DeviceID: t.deviceID, At: time.Now()}
	if p.latest != nil {
		r.Polls = p.latest.Polls
	}
	r.Polls++
	if err != nil {
		r.Error = err.Error()
		// keep the last good status visible
		if p.latest != nil {
			r.Status = p.latest.Status
		}
		p.logger.Warn("Status poll failed", zap.String("device_id", t.deviceID), zap.Error(err))
	} else {
		r.Status = &st
	}
	p.latest = &r
}
