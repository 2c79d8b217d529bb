package core

import (
	"time"

	"github.com/gridwire/ocpp16core/internal/connector"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
	"github.com/gridwire/ocpp16core/internal/reservation"
	"github.com/gridwire/ocpp16core/internal/txstore"
)

// wireHandlerCallbacks binds every CS-initiated operation to the
// subsystem that actually carries it out. The handler's own per-action
// unmarshal/dispatch (dictionary.RegisterInbound) is what calls these.
func (sys *System) wireHandlerCallbacks() {
	h := sys.handler

	h.OnRemoteStartTransaction = sys.onRemoteStartTransaction
	h.OnRemoteStopTransaction = sys.onRemoteStopTransaction
	h.OnReset = sys.onReset
	h.OnUnlockConnector = sys.onUnlockConnector
	h.OnChangeAvailability = sys.onChangeAvailability
	h.OnChangeConfiguration = sys.onChangeConfiguration
	h.OnGetConfiguration = sys.onGetConfiguration
	h.OnClearCache = sys.onClearCache
	h.OnDataTransfer = sys.onDataTransfer
	h.OnSetChargingProfile = sys.onSetChargingProfile
	h.OnClearChargingProfile = sys.onClearChargingProfile
	h.OnGetCompositeSchedule = sys.onGetCompositeSchedule
	h.OnTriggerMessage = sys.onTriggerMessage
	h.OnReserveNow = sys.onReserveNow
	h.OnCancelReservation = sys.onCancelReservation
	h.OnGetDiagnostics = sys.onGetDiagnostics
	h.OnUpdateFirmware = sys.onUpdateFirmware
	h.OnGetLocalListVersion = sys.onGetLocalListVersion
	h.OnSendLocalList = sys.onSendLocalList
}

func (sys *System) sessionedConnector(id int) (*connectorState, bool) {
	cs, ok := sys.connectors[id]
	if !ok || cs.sess == nil {
		return nil, false
	}
	return cs, true
}

// firstAvailableConnector picks the lowest-numbered connector with no
// running transaction, for RemoteStartTransaction calls that omit
// connectorId.
func (sys *System) firstAvailableConnector() (int, *connectorState, bool) {
	for _, id := range sys.connIDs {
		if id == 0 {
			continue
		}
		cs := sys.connectors[id]
		if cs.sess != nil && !cs.sess.Running() {
			return id, cs, true
		}
	}
	return 0, nil, false
}

func (sys *System) onRemoteStartTransaction(stationID string, req *v16.RemoteStartTransactionRequest) (*v16.RemoteStartTransactionResponse, error) {
	var (
		cs *connectorState
		id int
		ok bool
	)
	if req.ConnectorId != nil {
		id = *req.ConnectorId
		cs, ok = sys.sessionedConnector(id)
	} else {
		id, cs, ok = sys.firstAvailableConnector()
	}
	if !ok || cs.sess.Running() {
		return &v16.RemoteStartTransactionResponse{Status: v16.RemoteStartStopStatusRejected}, nil
	}
	if req.ChargingProfile != nil {
		sys.profiles.Set(id, req.ChargingProfile)
	}
	if !cs.sess.Begin(sys.clock.Now(), req.IdTag, false) {
		return &v16.RemoteStartTransactionResponse{Status: v16.RemoteStartStopStatusRejected}, nil
	}
	return &v16.RemoteStartTransactionResponse{Status: v16.RemoteStartStopStatusAccepted}, nil
}

func (sys *System) onRemoteStopTransaction(stationID string, req *v16.RemoteStopTransactionRequest) (*v16.RemoteStopTransactionResponse, error) {
	for _, id := range sys.connIDs {
		cs, ok := sys.sessionedConnector(id)
		if !ok || !cs.sess.Running() {
			continue
		}
		if int(cs.sess.CurrentTransactionID()) != req.TransactionId {
			continue
		}
		cs.sess.End(sys.clock.Now(), txstore.StopReasonRemote)
		return &v16.RemoteStopTransactionResponse{Status: v16.RemoteStartStopStatusAccepted}, nil
	}
	return &v16.RemoteStopTransactionResponse{Status: v16.RemoteStartStopStatusRejected}, nil
}

func (sys *System) onReset(stationID string, req *v16.ResetRequest) (*v16.ResetResponse, error) {
	hard := req.Type == v16.ResetTypeHard
	cs := sys.connectors[0]
	if cs.conn.Outputs.OnResetNotify != nil && !cs.conn.Outputs.OnResetNotify(hard) {
		return &v16.ResetResponse{Status: v16.ResetStatusRejected}, nil
	}
	if cs.conn.Outputs.OnResetExecute != nil {
		cs.conn.Outputs.OnResetExecute(hard)
	}
	return &v16.ResetResponse{Status: v16.ResetStatusAccepted}, nil
}

func (sys *System) onUnlockConnector(stationID string, req *v16.UnlockConnectorRequest) (*v16.UnlockConnectorResponse, error) {
	cs, ok := sys.sessionedConnector(req.ConnectorId)
	if !ok || cs.conn.Outputs.OnUnlockConnector == nil {
		return &v16.UnlockConnectorResponse{Status: v16.UnlockStatusNotSupported}, nil
	}
	switch cs.conn.Outputs.OnUnlockConnector() {
	case connector.UnlockAccepted:
		return &v16.UnlockConnectorResponse{Status: v16.UnlockStatusUnlocked}, nil
	default:
		return &v16.UnlockConnectorResponse{Status: v16.UnlockStatusUnlockFailed}, nil
	}
}

func (sys *System) onChangeAvailability(stationID string, req *v16.ChangeAvailabilityRequest) (*v16.ChangeAvailabilityResponse, error) {
	cs, ok := sys.connectors[req.ConnectorId]
	if !ok {
		return &v16.ChangeAvailabilityResponse{Status: v16.AvailabilityStatusRejected}, nil
	}
	return &v16.ChangeAvailabilityResponse{Status: cs.conn.ChangeAvailability(req.Type)}, nil
}

func (sys *System) onChangeConfiguration(stationID string, req *v16.ChangeConfigurationRequest) (*v16.ChangeConfigurationResponse, error) {
	return &v16.ChangeConfigurationResponse{Status: sys.registry.Set(req.Key, req.Value)}, nil
}

func (sys *System) onGetConfiguration(stationID string, req *v16.GetConfigurationRequest) (*v16.GetConfigurationResponse, error) {
	found, unknown := sys.registry.Describe(req.Key)
	return &v16.GetConfigurationResponse{ConfigurationKey: found, UnknownKey: unknown}, nil
}

func (sys *System) onClearCache(stationID string, req *v16.ClearCacheRequest) (*v16.ClearCacheResponse, error) {
	if err := sys.authCache.Clear(); err != nil {
		return &v16.ClearCacheResponse{Status: v16.AvailabilityStatusRejected}, nil
	}
	return &v16.ClearCacheResponse{Status: v16.AvailabilityStatusAccepted}, nil
}

// onDataTransfer answers every request with UnknownVendorId; no vendor
// extensions are registered and there is no hook for adding one.
func (sys *System) onDataTransfer(stationID string, req *v16.DataTransferRequest) (*v16.DataTransferResponse, error) {
	return &v16.DataTransferResponse{Status: v16.DataTransferStatusUnknownVendorId}, nil
}

func (sys *System) onSetChargingProfile(stationID string, req *v16.SetChargingProfileRequest) (*v16.SetChargingProfileResponse, error) {
	if _, ok := sys.connectors[req.ConnectorId]; !ok {
		return &v16.SetChargingProfileResponse{Status: v16.ChargingProfileStatusRejected}, nil
	}
	status := sys.profiles.Set(req.ConnectorId, &req.CsChargingProfiles)
	return &v16.SetChargingProfileResponse{Status: status}, nil
}

func (sys *System) onClearChargingProfile(stationID string, req *v16.ClearChargingProfileRequest) (*v16.ClearChargingProfileResponse, error) {
	var purpose *v16.ChargingProfilePurposeType
	if req.ChargingProfilePurpose != "" {
		purpose = &req.ChargingProfilePurpose
	}
	status := sys.profiles.Clear(req.Id, req.ConnectorId, purpose, req.StackLevel)
	return &v16.ClearChargingProfileResponse{Status: status}, nil
}

func (sys *System) onGetCompositeSchedule(stationID string, req *v16.GetCompositeScheduleRequest) (*v16.GetCompositeScheduleResponse, error) {
	cs, ok := sys.connectors[req.ConnectorId]
	if !ok {
		return &v16.GetCompositeScheduleResponse{Status: v16.ChargingProfileStatusRejected}, nil
	}
	now := sys.clock.Now()
	var sessionStart time.Time
	var txID *int32
	if cs.sess != nil && cs.sess.Running() {
		if tx := cs.sess.Tx(); tx != nil {
			sessionStart = tx.StartTimestamp
			id := cs.sess.CurrentTransactionID()
			txID = &id
		}
	}
	unit := req.ChargingRateUnit
	if unit == "" {
		unit = v16.ChargingRateUnitWatts
	}
	schedule := sys.profiles.CompositeSchedule(req.ConnectorId, now, time.Duration(req.Duration)*time.Second, sessionStart, txID, unit)
	if schedule == nil {
		return &v16.GetCompositeScheduleResponse{Status: v16.ChargingProfileStatusRejected}, nil
	}
	start := v16.DateTime{Time: now}
	return &v16.GetCompositeScheduleResponse{
		Status:           v16.ChargingProfileStatusAccepted,
		ConnectorId:      req.ConnectorId,
		ScheduleStart:    &start,
		ChargingSchedule: schedule,
	}, nil
}

// onTriggerMessage handles on-demand requests: BootNotification and
// Heartbeat are rescheduled for the next Step; StatusNotification is
// answered Accepted but no StatusNotification.req is sent; every other
// requested message is answered NotImplemented.
func (sys *System) onTriggerMessage(stationID string, req *v16.TriggerMessageRequest) (*v16.TriggerMessageResponse, error) {
	switch req.RequestedMessage {
	case v16.TriggerMessageBootNotification:
		sys.booted = false
		sys.bootDue = sys.clock.Now()
		return &v16.TriggerMessageResponse{Status: v16.TriggerMessageStatusAccepted}, nil
	case v16.TriggerMessageHeartbeat:
		sys.heartbeatDue = sys.clock.Now()
		return &v16.TriggerMessageResponse{Status: v16.TriggerMessageStatusAccepted}, nil
	case v16.TriggerMessageStatusNotification:
		return &v16.TriggerMessageResponse{Status: v16.TriggerMessageStatusAccepted}, nil
	default:
		return &v16.TriggerMessageResponse{Status: v16.TriggerMessageStatusNotImplemented}, nil
	}
}

func (sys *System) onReserveNow(stationID string, req *v16.ReserveNowRequest) (*v16.ReserveNowResponse, error) {
	cs, ok := sys.connectors[req.ConnectorId]
	if !ok {
		return &v16.ReserveNowResponse{Status: v16.ReservationStatusRejected}, nil
	}
	if cs.sess != nil && cs.sess.Running() {
		return &v16.ReserveNowResponse{Status: v16.ReservationStatusOccupied}, nil
	}
	r := reservation.Reservation{
		ReservationId: req.ReservationId,
		ConnectorId:   req.ConnectorId,
		IdTag:         req.IdTag,
		ParentIdTag:   req.ParentIdTag,
		ExpiryDate:    req.ExpiryDate.Time,
	}
	status := sys.reservations.Reserve(r, sys.clock.Now())
	return &v16.ReserveNowResponse{Status: status}, nil
}

func (sys *System) onCancelReservation(stationID string, req *v16.CancelReservationRequest) (*v16.CancelReservationResponse, error) {
	status := sys.reservations.Cancel(req.ReservationId)
	return &v16.CancelReservationResponse{Status: status}, nil
}

// onGetDiagnostics and onUpdateFirmware answer with an empty response
// and perform no file transfer. onSendLocalList stores the list in the
// authorization cache (a Full update clears the cache first; entries
// without IdTagInfo are skipped), and onGetLocalListVersion reports the
// number of cached entries as the list version.
func (sys *System) onGetDiagnostics(stationID string, req *v16.GetDiagnosticsRequest) (*v16.GetDiagnosticsResponse, error) {
	return &v16.GetDiagnosticsResponse{}, nil
}

func (sys *System) onUpdateFirmware(stationID string, req *v16.UpdateFirmwareRequest) (*v16.UpdateFirmwareResponse, error) {
	return &v16.UpdateFirmwareResponse{}, nil
}

func (sys *System) onGetLocalListVersion(stationID string, req *v16.GetLocalListVersionRequest) (*v16.GetLocalListVersionResponse, error) {
	return &v16.GetLocalListVersionResponse{ListVersion: sys.authCache.Len()}, nil
}

func (sys *System) onSendLocalList(stationID string, req *v16.SendLocalListRequest) (*v16.SendLocalListResponse, error) {
	if req.UpdateType == v16.UpdateTypeFull {
		_ = sys.authCache.Clear()
	}
	for _, entry := range req.LocalAuthorizationList {
		if entry.IdTagInfo == nil {
			continue
		}
		sys.cacheIdTagInfo(entry.IdTag, *entry.IdTagInfo)
	}
	return &v16.SendLocalListResponse{Status: v16.UpdateStatusAccepted}, nil
}
