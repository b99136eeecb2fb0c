// Package gouroboros is the direct-to-node chainsync.Backend. It dials
// the node with the node-to-node protocols (chain-sync for headers,
// block-fetch for bodies); the node-to-client local chain-sync protocol
// is not used. It is
// grounded on the teacher's gouroboros block syncer
// (indexer/gouroboros/block_syncer.go) but reshaped into a blocking
// Connect call instead of an async errorCh, since chainsync.Client
// already owns the retry loop.
package gouroboros

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	ouroboros "github.com/blinklabs-io/gouroboros"
	"github.com/blinklabs-io/gouroboros/ledger"
	"github.com/blinklabs-io/gouroboros/protocol/chainsync"
	"github.com/blinklabs-io/gouroboros/protocol/common"
	"github.com/hashicorp/go-hclog"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	indexersync "github.com/cardano-chain-indexer/indexer/chainsync"
	"github.com/cardano-chain-indexer/indexer/mailbox"
	"github.com/cardano-chain-indexer/indexer/model"
)

const (
	ProtocolTCP  = "tcp"
	ProtocolUnix = "unix"
)

var errFatal = fmt.Errorf("gouroboros backend: %w", indexersync.ErrFatal)

type Config struct {
	NetworkMagic uint32
	NodeAddress  string
	KeepAlive    bool
}

func (c Config) protocol() string {
	if strings.HasPrefix(c.NodeAddress, "/") {
		return ProtocolUnix
	}

	return ProtocolTCP
}

// Backend is a direct node-to-node chainsync.Backend. It pushes
// decoded blocks into mb itself (rather than returning them to the
// caller), since gouroboros delivers roll-forward/roll-backward as
// callbacks rather than as a pull API.
type Backend struct {
	config Config
	mb     *mailbox.Mailbox
	logger hclog.Logger

	lock       sync.Mutex
	connection *ouroboros.Connection
}

func New(config Config, mb *mailbox.Mailbox, logger hclog.Logger) *Backend {
	return &Backend{config: config, mb: mb, logger: logger}
}

// Connect dials the node, finds the intersection at point, and blocks
// until the connection ends, pushing every roll-forward/roll-backward
// it receives into the mailbox along the way.
func (b *Backend) Connect(point chainpoint.Point) error {
	connection, err := ouroboros.NewConnection(
		ouroboros.WithNetworkMagic(b.config.NetworkMagic),
		ouroboros.WithNodeToNode(true),
		ouroboros.WithKeepAlive(b.config.KeepAlive),
		ouroboros.WithChainSyncConfig(chainsync.NewConfig(
			chainsync.WithRollBackwardFunc(b.rollBackwardCallback),
			chainsync.WithRollForwardFunc(b.rollForwardCallback),
		)),
	)
	if err != nil {
		return fmt.Errorf("could not configure connection: %w", err)
	}

	if err := connection.Dial(b.config.protocol(), b.config.NodeAddress); err != nil {
		return fmt.Errorf("could not dial node: %w", err)
	}

	b.lock.Lock()
	b.connection = connection
	b.lock.Unlock()

	b.logger.Debug("connection established", "addr", b.config.NodeAddress, "magic", b.config.NetworkMagic)

	var intersection common.Point
	if !point.IsGenesis() {
		intersection = common.NewPoint(point.Slot, point.Hash[:])
	}

	if err := connection.ChainSync().Client.Sync([]common.Point{intersection}); err != nil {
		return fmt.Errorf("could not start syncing: %w", err)
	}

	b.logger.Debug("syncing started", "point", point)

	err, ok := <-connection.ErrorChan()
	if !ok {
		return nil
	}

	return err
}

func (b *Backend) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.connection == nil {
		return nil
	}

	err := b.connection.Close()
	b.connection = nil

	return err
}

func (b *Backend) rollBackwardCallback(ctx chainsync.CallbackContext, point common.Point, tip chainsync.Tip) error {
	b.logger.Debug("roll backward", "hash", hex.EncodeToString(point.Hash), "slot", point.Slot)

	hash, err := chainpoint.HashFromBytes(point.Hash)
	if err != nil && point.Slot != 0 {
		return fmt.Errorf("%w: invalid rollback hash: %v", errFatal, err)
	}

	backTip := chainpoint.Tip{
		Point:       chainpoint.NewPoint(tip.Point.Slot, mustHash(tip.Point.Hash)),
		BlockNumber: tip.BlockNumber,
	}

	if !b.mb.Push(mailbox.RollBackward(backTip, chainpoint.NewPoint(point.Slot, hash))) {
		return fmt.Errorf("%w: mailbox closed", errFatal)
	}

	return nil
}

func (b *Backend) rollForwardCallback(
	ctx chainsync.CallbackContext, blockType uint, blockInfo interface{}, tip chainsync.Tip,
) error {
	blockHeader, ok := blockInfo.(ledger.BlockHeader)
	if !ok {
		return fmt.Errorf("%w: unexpected block header type", errFatal)
	}

	b.lock.Lock()
	connection := b.connection
	b.lock.Unlock()

	if connection == nil {
		return fmt.Errorf("%w: no connection", errFatal)
	}

	hash, err := chainpoint.HashFromHex(blockHeader.Hash())
	if err != nil {
		return fmt.Errorf("%w: invalid block hash: %v", errFatal, err)
	}

	block, err := connection.BlockFetch().Client.GetBlock(common.NewPoint(blockHeader.SlotNumber(), hash[:]))
	if err != nil {
		return fmt.Errorf("could not fetch block body: %w", err)
	}

	decoded := &model.Block{
		Point: chainpoint.NewPoint(blockHeader.SlotNumber(), hash),
		Txs:   decodeTransactions(block.Transactions()),
	}

	fwdTip := chainpoint.Tip{
		Point:       chainpoint.NewPoint(tip.Point.Slot, mustHash(tip.Point.Hash)),
		BlockNumber: tip.BlockNumber,
	}

	if !b.mb.Push(mailbox.RollForward(fwdTip, decoded)) {
		return fmt.Errorf("%w: mailbox closed", errFatal)
	}

	return nil
}

// GetBlockTransactions fetches an arbitrary already-synced block by
// point and decodes its transactions, serving the HTTP layer's
// /metadata/<slot> lookup. Ogmios has no equivalent arbitrary-point
// fetch in its JSON-WSP surface, so this capability lives only here.
func (b *Backend) GetBlockTransactions(point chainpoint.Point) ([]*model.Tx, error) {
	b.lock.Lock()
	connection := b.connection
	b.lock.Unlock()

	if connection == nil {
		return nil, fmt.Errorf("gouroboros backend: not connected")
	}

	block, err := connection.BlockFetch().Client.GetBlock(common.NewPoint(point.Slot, point.Hash[:]))
	if err != nil {
		return nil, fmt.Errorf("could not fetch block body: %w", err)
	}

	return decodeTransactions(block.Transactions()), nil
}

func mustHash(b []byte) chainpoint.Hash {
	h, err := chainpoint.HashFromBytes(b)
	if err != nil {
		return chainpoint.Hash{}
	}

	return h
}
