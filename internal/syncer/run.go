package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/budgetsync/internal/remote"
)

// Run is the single coordinating loop of a session. It subscribes to every
// remote collection and handles, one at a time, incoming snapshots,
// connectivity transitions and drain requests. Cancelling ctx releases the
// subscriptions; a drain in progress finishes its current action first.
func (m *Manager) Run(ctx context.Context) error {
	snapshots := make(chan remote.Snapshot)
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, coll := range Collections {
		ch, err := m.remote.Subscribe(ctx, m.cfg.UserID, coll)
		if err != nil {
			return fmt.Errorf("Run: subscribe %s: %w", coll, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snap := range ch {
				select {
				case snapshots <- snap:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	transitions := m.monitor.Subscribe(ctx)
	if m.monitor.Online() {
		m.RequestDrain()
	}
	m.log.Info().Msg("sync manager started")

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("sync manager stopped")
			return nil

		case snap := <-snapshots:
			if err := m.handleSnapshot(ctx, snap); err != nil {
				m.log.Error().Err(err).Str("collection", snap.Collection).Msg("mirror snapshot failed")
			}

		case online, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			if online {
				m.drainLogged(ctx)
			}

		case <-m.drainReq:
			if m.monitor.Online() {
				m.drainLogged(ctx)
			}
		}
	}
}

func (m *Manager) drainLogged(ctx context.Context) {
	res, err := m.Drain(ctx)
	if err != nil {
		// already logged per action
		return
	}
	if res.Applied > 0 || len(res.DeadLettered) > 0 {
		m.log.Info().Int("applied", res.Applied).Int("dead_lettered", len(res.DeadLettered)).Msg("queue drained")
	}
}
