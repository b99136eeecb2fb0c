// Package ogmios is the chainsync.Backend that talks to a node through
// Ogmios's JSON-WSP chain-sync bridge instead of node-to-client directly,
// grounded on the teacher's Ogmios block syncer
// (indexer/ogmios/block_syncer.go) and reshaped the same way the
// gouroboros backend was: a blocking Connect instead of an async errorCh,
// since chainsync.Client already owns the retry loop.
package ogmios

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/chainsync"
	"github.com/cardano-chain-indexer/indexer/mailbox"
)

const (
	findIntersectionMethod = "findIntersection"
	nextBlockMethod        = "nextBlock"

	findIntersectionID = "int"
	nextBlockID        = "nb"
)

var errFatal = fmt.Errorf("ogmios backend: %w", chainsync.ErrFatal)

type Config struct {
	URL string
}

// Backend is a chainsync.Backend over Ogmios's WebSocket JSON-WSP
// protocol. Like the gouroboros backend it pushes decoded blocks into mb
// itself rather than returning them, since the wire protocol delivers
// roll-forward/roll-backward as a message stream rather than a pull API.
type Backend struct {
	config Config
	mb     *mailbox.Mailbox
	logger hclog.Logger

	lock       sync.Mutex
	connection *websocket.Conn
}

func New(config Config, mb *mailbox.Mailbox, logger hclog.Logger) *Backend {
	return &Backend{config: config, mb: mb, logger: logger}
}

// Connect dials Ogmios, asks it to find the intersection at point, then
// blocks reading nextBlock responses (requesting one more after each)
// until the connection ends or a fatal protocol error occurs.
func (b *Backend) Connect(point chainpoint.Point) error {
	connection, _, err := websocket.DefaultDialer.Dial(b.config.URL, nil)
	if err != nil {
		return fmt.Errorf("could not dial ogmios: %w", err)
	}

	b.lock.Lock()
	b.connection = connection
	b.lock.Unlock()

	defer b.Close() //nolint:errcheck

	b.logger.Debug("connection established", "url", b.config.URL)

	if err := sendFindIntersection(connection, point); err != nil {
		return fmt.Errorf("could not request intersection: %w", err)
	}

	if err := sendNextBlock(connection); err != nil {
		return fmt.Errorf("could not request next block: %w", err)
	}

	b.logger.Debug("syncing started", "url", b.config.URL, "point", point)

	return b.mainLoop(connection)
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

func (b *Backend) mainLoop(conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var resp response

		if err := json.Unmarshal(message, &resp); err != nil {
			return fmt.Errorf("%w: malformed response: %v", errFatal, err)
		}

		if resp.Error != nil {
			return fmt.Errorf("ogmios error %d: %s", resp.Error.Code, resp.Error.Message)
		}

		if resp.ID != nextBlockID {
			continue // findIntersection's ack; nothing to do but keep reading
		}

		if err := b.handleNextBlock(resp.Result); err != nil {
			return err
		}

		if err := sendNextBlock(conn); err != nil {
			return err
		}
	}
}

func (b *Backend) handleNextBlock(raw json.RawMessage) error {
	var next nextBlockResult

	if err := json.Unmarshal(raw, &next); err != nil {
		return fmt.Errorf("%w: malformed nextBlock result: %v", errFatal, err)
	}

	tip := chainpoint.Tip{BlockNumber: next.Tip.Height}
	if hash, err := chainpoint.HashFromHex(next.Tip.ID); err == nil {
		tip.Point = chainpoint.NewPoint(next.Tip.Slot, hash)
	}

	if next.Direction == "backward" {
		var pt point
		if err := json.Unmarshal(next.Point, &pt); err != nil {
			if !b.mb.Push(mailbox.RollBackward(tip, chainpoint.Genesis)) {
				return fmt.Errorf("%w: mailbox closed", errFatal)
			}

			return nil
		}

		hash, err := chainpoint.HashFromHex(pt.ID)
		if err != nil && pt.Slot != 0 {
			return fmt.Errorf("%w: invalid rollback hash: %v", errFatal, err)
		}

		if !b.mb.Push(mailbox.RollBackward(tip, chainpoint.NewPoint(pt.Slot, hash))) {
			return fmt.Errorf("%w: mailbox closed", errFatal)
		}

		return nil
	}

	var blk block

	if err := json.Unmarshal(next.Block, &blk); err != nil {
		return fmt.Errorf("%w: malformed block: %v", errFatal, err)
	}

	if !b.mb.Push(mailbox.RollForward(tip, decodeBlock(&blk))) {
		return fmt.Errorf("%w: mailbox closed", errFatal)
	}

	return nil
}

func sendFindIntersection(conn *websocket.Conn, p chainpoint.Point) error {
	if p.IsGenesis() {
		return sendRPC(conn, findIntersectionMethod, intersection[string]{Points: []string{"origin"}}, findIntersectionID)
	}

	return sendRPC(conn, findIntersectionMethod,
		intersection[point]{Points: []point{{Slot: p.Slot, ID: p.Hash.String()}}}, findIntersectionID)
}

func sendNextBlock(conn *websocket.Conn) error {
	return sendRPC(conn, nextBlockMethod, struct{}{}, nextBlockID)
}

func sendRPC(conn *websocket.Conn, method string, params any, id string) error {
	data, err := json.Marshal(request{Version: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return err
	}

	return conn.WriteMessage(websocket.TextMessage, data)
}
