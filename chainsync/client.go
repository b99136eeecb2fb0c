// Package chainsync drives a pluggable chain-sync Backend through
// connect/retry/backoff (spec.md §4.4), grounded on the teacher's
// BlockSyncerImpl (indexer/block_syncer.go), and layers the
// forced-rollback rendezvous described in SPEC_FULL.md on top.
package chainsync

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/store/rollbackcell"
)

// ErrFatal wraps backend errors that must never be retried (spec.md's
// "fatal" classification, e.g. a protocol mismatch), mirroring the
// teacher's errBlockSyncerFatal.
var ErrFatal = errors.New("chain-sync fatal error")

var errClientClosed = errors.New("chain-sync client closed")

// errRollbackNotConfirmed is reported to ForceRollback's caller when the
// reconnected session ends (or closes cleanly for some other reason,
// e.g. another forced rollback arriving first) before the consumer ever
// reported having applied the target checkpoint.
var errRollbackNotConfirmed = errors.New("connection ended before rollback checkpoint was confirmed")

// Backend is implemented once per transport — direct node-to-node via
// gouroboros, or Ogmios over JSON-WSP. Connect blocks until the
// connection is torn down (by Close, by the remote end, or by a
// transport error) or until a fatal error occurs. It is responsible for
// pushing mailbox items and health updates itself as it decodes the
// wire protocol, since what a block looks like varies by backend
// (SPEC_FULL's polymorphism over block shape).
type Backend interface {
	Connect(intersection chainpoint.Point) error
	Close() error
}

// Config mirrors the teacher's BlockSyncerConfig restart knobs.
type Config struct {
	RestartOnError bool
	RestartDelay   time.Duration
	SyncStartTries int
}

const syncStartTriesDefault = 4

// ResumePoint answers, once per (re)connect attempt, where syncing
// should resume from — the teacher's BlockSyncerHandler.Reset, pulled
// out of the handler interface because here it is answered by the
// store/registry rather than by the consumer object itself.
type ResumePoint func() (chainpoint.Point, error)

type rollbackRequest struct {
	target chainpoint.Point
	result chan error
}

// Client owns exactly one Backend at a time and reconnects it on
// failure. ForceRollback hands off a target point that the client picks
// up at its next safe moment instead of racing an in-progress sync.
type Client struct {
	backend Backend
	config  Config
	resume  ResumePoint
	logger  hclog.Logger
	cell    *rollbackcell.Cell

	closed    chan struct{}
	closeOnce sync.Once
	errorCh   chan error

	rollbackCh chan rollbackRequest

	// pendingReq is the forced-rollback request the client is currently
	// reconnecting for, if any. ObserveCheckpoint resolves it the moment
	// the consumer reports the target applied; Sync resolves it as a
	// failure if the reconnected session ends first.
	pendingReq atomic.Pointer[rollbackRequest]
}

func NewClient(backend Backend, config Config, resume ResumePoint, cell *rollbackcell.Cell, logger hclog.Logger) *Client {
	return &Client{
		backend:    backend,
		config:     config,
		resume:     resume,
		cell:       cell,
		logger:     logger,
		closed:     make(chan struct{}),
		errorCh:    make(chan error, 1),
		rollbackCh: make(chan rollbackRequest),
	}
}

func (c *Client) ErrorCh() <-chan error { return c.errorCh }

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })

	return c.backend.Close()
}

// Sync runs the connect/retry loop until Close is called or the backend
// fails config.SyncStartTries times in a row with no pending rollback
// to reset the counter.
func (c *Client) Sync() error {
	tries := c.config.SyncStartTries
	if tries <= 0 {
		tries = syncStartTriesDefault
	}

	var (
		forced *chainpoint.Point
		err    error
	)

	for attempt := 1; attempt <= tries; attempt++ {
		select {
		case <-c.closed:
			return nil
		default:
		}

		var target chainpoint.Point

		if forced != nil {
			target = *forced
		} else {
			target, err = c.resume()
			if err != nil {
				return fmt.Errorf("could not resolve resume point: %w", err)
			}
		}

		connErr := c.backend.Connect(target)

		// Success was (or wasn't) already reported by ObserveCheckpoint,
		// independently of this call returning: Connect blocks for the
		// life of the session, which for a healthy producer outlives the
		// rollback by a wide margin.
		c.failPendingRollback(connErr)

		forced = nil
		err = connErr

		if err == nil {
			attempt = 0 // a clean disconnect (Close, or ForceRollback) doesn't count against the budget

			// Connect only returns nil via Close (c.closed is already
			// closed) or via ForceRollback's backend.Close (a request
			// is either already queued or about to be); block for it.
			select {
			case <-c.closed:
				return nil
			case req := <-c.rollbackCh:
				forced = c.beginRollback(req)

				continue
			}
		}

		if errors.Is(err, ErrFatal) || !c.config.RestartOnError {
			return err
		}

		c.logger.Warn("error while syncing, retrying", "err", err, "attempt", attempt, "of", tries)

		select {
		case <-c.closed:
			return nil
		case req := <-c.rollbackCh:
			forced = c.beginRollback(req)
			attempt = 0

			continue
		case <-time.After(c.config.RestartDelay):
		}
	}

	return err
}

// beginRollback records req as the client's outstanding forced-rollback
// request before reconnecting at its target, so ObserveCheckpoint can
// resolve it as soon as the consumer applies that checkpoint.
func (c *Client) beginRollback(req rollbackRequest) *chainpoint.Point {
	c.pendingReq.Store(&req)

	return &req.target
}

// failPendingRollback reports the outstanding forced-rollback request as
// failed if the session that was meant to carry its checkpoint ended (or
// closed) before ObserveCheckpoint ever confirmed it.
func (c *Client) failPendingRollback(connErr error) {
	req := c.pendingReq.Load()
	if req == nil {
		return
	}

	if !c.pendingReq.CompareAndSwap(req, nil) {
		return // ObserveCheckpoint already resolved this request
	}

	if connErr == nil {
		connErr = errRollbackNotConfirmed
	}

	req.result <- connErr
}

// ObserveCheckpoint reports a checkpoint the consumer has durably
// applied, resolving a pending ForceRollback the moment its target
// matches — decoupled from whether the reconnected session is still
// alive. The consumer calls this after applying a roll-backward; calls
// that don't match the outstanding request are no-ops.
func (c *Client) ObserveCheckpoint(point chainpoint.Point) {
	req := c.pendingReq.Load()
	if req == nil || req.target != point {
		return
	}

	if c.pendingReq.CompareAndSwap(req, nil) {
		req.result <- nil
	}
}

// ForceRollback interrupts the active connection and reconnects at
// target, the HTTP control plane's PUT /patterns rollback mechanism
// (spec.md §4.7). The target is durably recorded first so a crash
// mid-rollback is visible on restart.
func (c *Client) ForceRollback(target chainpoint.Point) error {
	if err := c.cell.MarkInFlight(target); err != nil {
		return fmt.Errorf("could not record in-flight rollback: %w", err)
	}
	defer c.cell.Clear() //nolint:errcheck

	req := rollbackRequest{target: target, result: make(chan error, 1)}

	// closing the backend unblocks the Sync loop's Connect call so it
	// loops back around and picks req up off rollbackCh.
	if err := c.backend.Close(); err != nil {
		c.logger.Warn("error closing connection ahead of forced rollback", "err", err)
	}

	select {
	case c.rollbackCh <- req:
	case <-c.closed:
		return errClientClosed
	}

	select {
	case err := <-req.result:
		return err
	case <-c.closed:
		return errClientClosed
	}
}
