package exchange

import (
	"encoding/json"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/xid"
)

// BookSnapshot contains the full state of a single order book: both sides in
// insertion order plus the history logs and counters. Re-inserting the orders
// in insertion order rebuilds identical heaps, directories and depth levels,
// since the (price, id) priority relation is total.
type BookSnapshot struct {
	SchemaVersion int    `json:"schema_version"`
	Pair          string `json:"pair"`
	BaseAsset     string `json:"base_asset"`
	TradeAsset    string `json:"trade_asset"`

	LastOrderID uint64 `json:"last_order_id"`
	SequenceID  uint64 `json:"seq_id"`
	TradeID     uint64 `json:"trade_id"`

	Bids []Order `json:"bids"` // Insertion order, oldest first
	Asks []Order `json:"asks"` // Insertion order, oldest first

	Orders []OrderRecord `json:"orders"`
	Trades []TradeRecord `json:"trades"`
}

// SnapshotMetadata holds the global metadata for a snapshot (stored in metadata.json).
type SnapshotMetadata struct {
	SchemaVersion    int    `json:"schema_version"`
	SnapshotID       string `json:"snapshot_id"`
	Pair             string `json:"pair"`
	Timestamp        int64  `json:"timestamp"` // Unix nano
	EngineVersion    string `json:"engine_version"`
	SnapshotChecksum uint32 `json:"snapshot_checksum"` // CRC32 of the entire snapshot.bin file
}

// createSnapshot captures the engine state. Must run from the dispatch point
// that serializes engine calls (the OrderBook loop does this via a command).
func (e *MatchingEngine) createSnapshot() *BookSnapshot {
	snap := &BookSnapshot{
		SchemaVersion: SnapshotSchemaVersion,
		Pair:          e.pair,
		BaseAsset:     e.baseAsset,
		TradeAsset:    e.tradeAsset,
		LastOrderID:   e.lastOrderID,
		SequenceID:    e.seqID,
		TradeID:       e.tradeID,
		Bids:          e.bidOrders.orders(),
		Asks:          e.askOrders.orders(),
		Orders:        append([]OrderRecord(nil), e.orderHistory.records...),
		Trades:        append([]TradeRecord(nil), e.tradeHistory.records...),
	}
	return snap
}

// restore resets the engine and rebuilds it from snapshot data, bypassing
// matching logic.
func (e *MatchingEngine) restore(snap *BookSnapshot) {
	e.pair = snap.Pair
	e.baseAsset = snap.BaseAsset
	e.tradeAsset = snap.TradeAsset
	e.lastOrderID = snap.LastOrderID
	e.seqID = snap.SequenceID
	e.tradeID = snap.TradeID

	e.asks = NewAskHeap()
	e.bids = NewBidHeap()
	e.askOrders = NewOpenOrderDirectory()
	e.bidOrders = NewOpenOrderDirectory()
	e.askDepth = newDepthLevels(Sell)
	e.bidDepth = newDepthLevels(Buy)

	restoreOrders := func(orders []Order, heap *bookHeap, dir *OpenOrderDirectory, depth *depthLevels) {
		for _, o := range orders {
			heap.insert(o)
			dir.append(o)
			depth.add(o.Price, o.Amount, 1)
			if o.Timestamp > e.lastTimestamp {
				e.lastTimestamp = o.Timestamp
			}
		}
	}
	restoreOrders(snap.Bids, e.bids, e.bidOrders, e.bidDepth)
	restoreOrders(snap.Asks, e.asks, e.askOrders, e.askDepth)

	e.orderHistory = &OrderHistory{records: append([]OrderRecord(nil), snap.Orders...)}
	e.tradeHistory = &TradeHistory{records: append([]TradeRecord(nil), snap.Trades...)}

	if n := e.orderHistory.size(); n > 0 {
		if ts := e.orderHistory.records[n-1].Timestamp; ts > e.lastTimestamp {
			e.lastTimestamp = ts
		}
	}
	if n := e.tradeHistory.size(); n > 0 {
		if ts := e.tradeHistory.records[n-1].Timestamp; ts > e.lastTimestamp {
			e.lastTimestamp = ts
		}
	}

	e.updateRestingGauges()
}

// WriteSnapshot writes a snapshot to outputDir as snapshot.bin plus
// metadata.json. The write goes through a temporary directory and an atomic
// rename so a crash never leaves a half-written snapshot behind.
func WriteSnapshot(outputDir string, snap *BookSnapshot) (*SnapshotMetadata, error) {
	tmpDir := outputDir + ".tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}

	binPath := filepath.Join(tmpDir, "snapshot.bin")
	if err := os.WriteFile(binPath, data, 0600); err != nil {
		return nil, err
	}

	checksum, err := calculateFileCRC32(binPath)
	if err != nil {
		return nil, err
	}

	meta := &SnapshotMetadata{
		SchemaVersion:    SnapshotSchemaVersion,
		SnapshotID:       xid.New().String(),
		Pair:             snap.Pair,
		Timestamp:        time.Now().UnixNano(),
		EngineVersion:    EngineVersion,
		SnapshotChecksum: checksum,
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}

	metaPath := filepath.Join(tmpDir, "metadata.json")
	if err := os.WriteFile(metaPath, metaBytes, 0600); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(outputDir); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpDir, outputDir); err != nil {
		return nil, err
	}

	return meta, nil
}

// ReadSnapshot loads and verifies a snapshot written by WriteSnapshot.
func ReadSnapshot(inputDir string) (*BookSnapshot, *SnapshotMetadata, error) {
	metaBytes, err := os.ReadFile(filepath.Join(inputDir, "metadata.json"))
	if err != nil {
		return nil, nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, err
	}

	binPath := filepath.Join(inputDir, "snapshot.bin")
	checksum, err := calculateFileCRC32(binPath)
	if err != nil {
		return nil, nil, err
	}
	if checksum != meta.SnapshotChecksum {
		return nil, nil, errors.New("snapshot.bin checksum mismatch")
	}

	data, err := os.ReadFile(binPath)
	if err != nil {
		return nil, nil, err
	}

	var snap BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, nil, err
	}

	if snap.SchemaVersion > SnapshotSchemaVersion {
		return nil, nil, errors.New("snapshot schema version is newer than this engine supports")
	}

	return &snap, &meta, nil
}

func calculateFileCRC32(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}
