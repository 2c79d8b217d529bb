// Package core wires every leaf package (ocpp/v16, rpc, dictionary,
// ocppconfig, txstore, connector, smartcharge, meter, reservation,
// telemetry) into a single station-facing library: one System per
// charge point, driven by a single Step call a host's own loop invokes
// on whatever cadence it likes.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridwire/ocpp16core/internal/clock"
	"github.com/gridwire/ocpp16core/internal/connector"
	"github.com/gridwire/ocpp16core/internal/dictionary"
	"github.com/gridwire/ocpp16core/internal/fsadapter"
	"github.com/gridwire/ocpp16core/internal/meter"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
	"github.com/gridwire/ocpp16core/internal/ocppconfig"
	"github.com/gridwire/ocpp16core/internal/reservation"
	"github.com/gridwire/ocpp16core/internal/rpc"
	"github.com/gridwire/ocpp16core/internal/smartcharge"
	"github.com/gridwire/ocpp16core/internal/telemetry"
	"github.com/gridwire/ocpp16core/internal/transport"
	"github.com/gridwire/ocpp16core/internal/txstore"
)

// Credentials identify the station to the CS on BootNotification.req.
type Credentials struct {
	ChargePointVendor       string
	ChargePointModel        string
	ChargePointSerialNumber string
	ChargeBoxSerialNumber   string
	FirmwareVersion         string
	Iccid                   string
	Imsi                    string
	MeterType               string
	MeterSerialNumber       string
}

// connectorState bundles the per-connector collaborators System owns.
type connectorState struct {
	conn   *connector.Connector
	sess   *connector.Session
	policy connector.Policy
	meter  *meter.Service
}

// System is one charge point core: one station id, N connectors (plus
// the connector-0 aggregate), one RPC engine, one of everything else.
type System struct {
	logger *slog.Logger
	clock  clock.Clock

	stationID   string
	credentials Credentials
	voltageV    float64

	fs fsadapter.FS

	engine  *rpc.Engine
	handler *v16.Handler

	registry     *ocppconfig.Registry
	txs          *txstore.Store
	profiles     *smartcharge.Store
	reservations *reservation.Store
	authCache    *reservation.Cache
	telemetry    *telemetry.Mirror

	connectors map[int]*connectorState
	connIDs    []int

	booted        bool
	bootPending   bool
	bootDue       time.Time
	heartbeatDue  time.Time
	heartbeatIntv time.Duration

	transport transport.Transport

	onTxNotify connector.NotifyFunc
}

// Options bundles New's dependencies that aren't obviously derivable
// from bootstrap.Config (fs adapter, transport, logger) so callers can
// substitute fakes in tests without a config file on disk.
type Options struct {
	Logger      *slog.Logger
	Clock       clock.Clock
	FS          fsadapter.FS
	Transport   transport.Transport
	StationID   string
	Credentials Credentials
	VoltageV    float64
	ConnectorIDs []int // connector 0 (aggregate) is added automatically
	Telemetry   *telemetry.Mirror
	RetryBase   time.Duration
	RetryMax    time.Duration
}

// New builds a System and loads any persisted state found on fs
// (configuration registry, in-flight transactions, charging profiles,
// reservations, authorization cache) — the crash-recovery path.
func New(opts Options) (*System, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cl := opts.Clock
	if cl == nil {
		cl = clock.NewSystemClock()
	}
	if opts.VoltageV == 0 {
		opts.VoltageV = 230
	}
	if len(opts.ConnectorIDs) == 0 {
		opts.ConnectorIDs = []int{1}
	}

	sys := &System{
		logger:      logger,
		clock:       cl,
		stationID:   opts.StationID,
		credentials: opts.Credentials,
		voltageV:    opts.VoltageV,
		fs:          opts.FS,
		engine:      rpc.New(logger, opts.RetryBase, opts.RetryMax),
		handler:     v16.NewHandler(logger),
		registry:    ocppconfig.New(opts.FS, "ao-config.json"),
		txs:         txstore.New(opts.FS, 32),
		profiles:    smartcharge.New(opts.FS),
		reservations: reservation.New(opts.FS),
		authCache:   reservation.NewCache(opts.FS, "auth-list.json", 100),
		telemetry:   opts.Telemetry,
		connectors:  make(map[int]*connectorState),
		transport:   opts.Transport,
	}

	allIDs := append([]int{0}, opts.ConnectorIDs...)
	sys.connIDs = allIDs
	sys.defineConfiguration()
	if err := sys.registry.Load(); err != nil {
		return nil, fmt.Errorf("core: load configuration: %w", err)
	}
	if err := sys.authCache.Load(); err != nil {
		return nil, fmt.Errorf("core: load auth cache: %w", err)
	}

	for _, id := range allIDs {
		sys.addConnector(id)
	}
	now := cl.Now()
	sys.reservations.Reload(opts.ConnectorIDs, now)
	sys.profiles.Reload(allIDs, sys.maxStackLevel())
	for _, id := range opts.ConnectorIDs {
		if err := sys.txs.Recover(id); err != nil {
			logger.Warn("core: transaction recovery failed", "connector", id, "error", err)
		}
	}

	sys.wireConnectorProbes()
	sys.wireHandlerCallbacks()
	dictionary.RegisterInbound(sys.engine, sys.handler, sys.stationID)

	return sys, nil
}

func (sys *System) maxStackLevel() int {
	lvl, ok := sys.registry.GetInt("ChargeProfileMaxStackLevel")
	if !ok {
		return 8
	}
	return lvl
}

func (sys *System) addConnector(id int) {
	c := connector.New(id, sys.logger)
	cs := &connectorState{conn: c}
	if id != 0 {
		cs.policy = sys.policyFromConfig()
		sess := connector.NewSession(id, sys.txs, &cs.policy)
		c.AttachSession(sess)
		cs.sess = sess
		cs.meter = meter.New(sys.stopTxMaxSize())
		sys.wireMeterFromConfig(cs.meter)
	}
	sys.connectors[id] = cs
}

// Step advances every owned subsystem by one cooperative tick: drains
// transport frames, pumps the RPC engine, and steps every connector's
// status inference, transaction lifecycle, and metering — all without
// ever blocking.
func (sys *System) Step(now time.Time) {
	sys.stepBootstrap(now)
	sys.stepHeartbeat(now)

	if sys.transport != nil {
		sys.engine.Step(now, sys.transport)
	}
	sys.reservations.ExpireAll(now)

	for _, id := range sys.connIDs {
		cs := sys.connectors[id]
		stopOnEVDisconnect, _ := sys.registry.GetBool("StopTransactionOnEVSideDisconnect")
		cs.conn.Step(now, stopOnEVDisconnect)
		if cs.sess == nil {
			continue
		}
		sys.applySmartChargingLimit(id, now)

		var activeTx *txstore.Transaction
		if cs.sess.Running() {
			activeTx = cs.sess.Tx()
		}
		if cs.meter != nil {
			cs.meter.Step(now, activeTx)
		}
	}
}

// Close flushes any pending telemetry work and releases resources. Safe
// to call even when telemetry was never configured.
func (sys *System) Close(ctx context.Context) error {
	if sys.telemetry != nil {
		return sys.telemetry.Close(ctx)
	}
	return nil
}
