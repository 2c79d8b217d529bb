// Package telemetry is a best-effort, fire-and-forget mirror of
// completed transactions and clock-aligned meter snapshots to a
// fleet-analytics MongoDB backend. It sits beside, never inside, the
// crash-safe filesystem transaction store (internal/txstore): mirroring
// runs on its own goroutine and never blocks step().
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gridwire/ocpp16core/internal/txstore"
)

// Config holds the Mirror's MongoDB connection settings.
type Config struct {
	URI               string
	Database          string
	ConnectionTimeout time.Duration
}

// TransactionDoc is the document shape persisted for a completed
// transaction, denormalised from txstore.Transaction for easy querying.
type TransactionDoc struct {
	StationID     string    `bson:"station_id"`
	TxNr          int       `bson:"tx_nr"`
	ConnectorID   int       `bson:"connector_id"`
	IdTag         string    `bson:"id_tag"`
	TransactionID int32     `bson:"transaction_id"`
	MeterStart    int32     `bson:"meter_start"`
	MeterStop     int32     `bson:"meter_stop"`
	StartTime     time.Time `bson:"start_timestamp"`
	StopTime      time.Time `bson:"stop_timestamp"`
	StopReason    string    `bson:"stop_reason"`
	MirroredAt    time.Time `bson:"mirrored_at"`
}

// SnapshotDoc is the document shape for a clock-aligned meter snapshot.
type SnapshotDoc struct {
	StationID   string    `bson:"station_id"`
	ConnectorID int       `bson:"connector_id"`
	Timestamp   time.Time `bson:"timestamp"`
	Context     string    `bson:"context"`
	Samples     bson.M    `bson:"samples"`
	MirroredAt  time.Time `bson:"mirrored_at"`
}

// Mirror owns the MongoDB client and a bounded work queue drained by a
// background goroutine; Submit* calls never block on network I/O.
type Mirror struct {
	client *mongo.Client
	txs    *mongo.Collection
	snaps  *mongo.Collection
	logger *slog.Logger

	stationID string
	queue     chan func(ctx context.Context)
	done      chan struct{}
}

// Connect dials MongoDB and starts the background drain loop. A nil
// Mirror (returned alongside a non-nil error) is never handed back;
// callers that don't want telemetry simply don't call Connect.
func Connect(ctx context.Context, cfg Config, stationID string, logger *slog.Logger) (*Mirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := options.Client().ApplyURI(cfg.URI)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("telemetry: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("telemetry: ping: %w", err)
	}

	db := client.Database(cfg.Database)
	m := &Mirror{
		client:    client,
		txs:       db.Collection("transactions"),
		snaps:     db.Collection("meter_snapshots"),
		logger:    logger,
		stationID: stationID,
		queue:     make(chan func(ctx context.Context), 256),
		done:      make(chan struct{}),
	}
	go m.drain()
	return m, nil
}

func (m *Mirror) drain() {
	defer close(m.done)
	for task := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		task(ctx)
		cancel()
	}
}

// enqueue drops the task with a warning log if the queue is full,
// preserving the fire-and-forget contract rather than ever blocking
// the caller's step().
func (m *Mirror) enqueue(task func(ctx context.Context)) {
	select {
	case m.queue <- task:
	default:
		m.logger.Warn("telemetry queue full, dropping mirror task")
	}
}

// MirrorTransaction asynchronously inserts a completed transaction.
func (m *Mirror) MirrorTransaction(tx *txstore.Transaction) {
	doc := TransactionDoc{
		StationID:     m.stationID,
		TxNr:          tx.TxNr,
		ConnectorID:   tx.ConnectorID,
		IdTag:         tx.IdTag,
		TransactionID: tx.TransactionID,
		MeterStart:    tx.MeterStart,
		MeterStop:     tx.MeterStop,
		StartTime:     tx.StartTimestamp,
		StopTime:      tx.StopTimestamp,
		StopReason:    string(tx.StopReason),
		MirroredAt:    time.Now(),
	}
	m.enqueue(func(ctx context.Context) {
		if _, err := m.txs.InsertOne(ctx, doc); err != nil {
			m.logger.Warn("telemetry: mirror transaction failed", "error", err, "txNr", tx.TxNr)
		}
	})
}

// MirrorSnapshot asynchronously inserts a clock-aligned meter snapshot.
func (m *Mirror) MirrorSnapshot(connectorID int, snap txstore.MeterSnapshot) {
	samples := bson.M{}
	for _, s := range snap.Samples {
		samples[s.Measurand] = s.Value
	}
	doc := SnapshotDoc{
		StationID:   m.stationID,
		ConnectorID: connectorID,
		Timestamp:   snap.Timestamp,
		Context:     string(snap.Context),
		Samples:     samples,
		MirroredAt:  time.Now(),
	}
	m.enqueue(func(ctx context.Context) {
		if _, err := m.snaps.InsertOne(ctx, doc); err != nil {
			m.logger.Warn("telemetry: mirror snapshot failed", "error", err)
		}
	})
}

// Close stops accepting new work, drains the queue, and disconnects.
func (m *Mirror) Close(ctx context.Context) error {
	close(m.queue)
	<-m.done
	return m.client.Disconnect(ctx)
}
