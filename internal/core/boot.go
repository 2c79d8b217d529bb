package core

import (
	"strconv"
	"time"

	"github.com/gridwire/ocpp16core/internal/dictionary"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

const defaultBootRetryInterval = 30 * time.Second

func (sys *System) protocolTimeout() time.Duration {
	seconds, ok := sys.registry.GetInt("ConnectionTimeOut")
	if !ok || seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// stepBootstrap drives BootNotification.req until Accepted: Pending
// retries after the CS-supplied interval and Rejected retries after a
// fixed backoff. Heartbeat waits until boot is Accepted; calls queued by
// the connectors (Authorize, StartTransaction, ...) are not held back
// and are sent whatever the boot state.
func (sys *System) stepBootstrap(now time.Time) {
	if sys.booted {
		return
	}
	if sys.bootPending || now.Before(sys.bootDue) {
		return
	}
	sys.bootPending = true
	sys.bootDue = now.Add(defaultBootRetryInterval)

	req := &v16.BootNotificationRequest{
		ChargePointVendor:       sys.credentials.ChargePointVendor,
		ChargePointModel:        sys.credentials.ChargePointModel,
		ChargePointSerialNumber: sys.credentials.ChargePointSerialNumber,
		ChargeBoxSerialNumber:   sys.credentials.ChargeBoxSerialNumber,
		FirmwareVersion:         sys.credentials.FirmwareVersion,
		Iccid:                   sys.credentials.Iccid,
		Imsi:                    sys.credentials.Imsi,
		MeterType:               sys.credentials.MeterType,
		MeterSerialNumber:       sys.credentials.MeterSerialNumber,
	}
	_, err := dictionary.SubmitBootNotification(sys.engine, req, sys.protocolTimeout(), func(r dictionary.Result[v16.BootNotificationResponse]) {
		sys.bootPending = false
		if r.Response == nil {
			sys.bootDue = sys.clock.Now().Add(defaultBootRetryInterval)
			return
		}
		switch r.Response.Status {
		case v16.RegistrationStatusAccepted:
			sys.booted = true
			sys.heartbeatIntv = time.Duration(r.Response.Interval) * time.Second
			if sys.heartbeatIntv <= 0 {
				sys.heartbeatIntv = 300 * time.Second
			}
			sys.registry.Set("HeartbeatInterval", formatSeconds(sys.heartbeatIntv))
			sys.heartbeatDue = sys.clock.Now().Add(sys.heartbeatIntv)
		case v16.RegistrationStatusPending:
			interval := time.Duration(r.Response.Interval) * time.Second
			if interval <= 0 {
				interval = defaultBootRetryInterval
			}
			sys.bootDue = sys.clock.Now().Add(interval)
		default:
			sys.bootDue = sys.clock.Now().Add(defaultBootRetryInterval)
		}
	})
	if err != nil {
		sys.bootPending = false
		sys.bootDue = now.Add(defaultBootRetryInterval)
	}
}

// stepHeartbeat sends Heartbeat.req on the configured interval once
// booted, resetting the interval clock from the moment of each send
// rather than a fixed wall-clock grid.
func (sys *System) stepHeartbeat(now time.Time) {
	if !sys.booted || now.Before(sys.heartbeatDue) {
		return
	}
	intv := sys.heartbeatIntv
	if intv <= 0 {
		seconds, _ := sys.registry.GetInt("HeartbeatInterval")
		if seconds <= 0 {
			seconds = 300
		}
		intv = time.Duration(seconds) * time.Second
	}
	sys.heartbeatDue = now.Add(intv)

	dictionary.SubmitHeartbeat(sys.engine, sys.protocolTimeout(), func(r dictionary.Result[v16.HeartbeatResponse]) {})
}

func formatSeconds(d time.Duration) string {
	return strconv.Itoa(int(d / time.Second))
}
