package core

import (
	"time"

	"github.com/gridwire/ocpp16core/internal/connector"
	"github.com/gridwire/ocpp16core/internal/meter"
	"github.com/gridwire/ocpp16core/internal/ocppconfig"
)

// defineConfiguration registers the OCPP 1.6 standard configuration
// keys this core observes. Every runtime-tunable key is Persistent so a
// reboot preserves CS-applied changes.
func (sys *System) defineConfiguration() {
	r := sys.registry
	p := ocppconfig.Persistent()

	r.DefineInt("HeartbeatInterval", 300, p)
	r.DefineInt("ConnectionTimeOut", 60, p)
	r.DefineInt("MeterValueSampleInterval", 60, p)
	r.DefineInt("ClockAlignedDataInterval", 0, p)
	r.DefineString("MeterValuesSampledData", "Energy.Active.Import.Register", p)
	r.DefineString("MeterValuesAlignedData", "Energy.Active.Import.Register", p)
	r.DefineString("StopTxnSampledData", "", p)
	r.DefineString("StopTxnAlignedData", "", p)
	r.DefineBool("StopTxnSampledDataCapturePeriodic", false, p)
	r.DefineInt("StopTxnDataMaxSize", 24, p)
	r.DefineInt("MinimumStatusDuration", 0, p)
	r.DefineBool("StopTransactionOnEVSideDisconnect", true, p)
	r.DefineBool("StopTransactionOnInvalidId", true, p)
	r.DefineBool("AuthorizeRemoteTxRequests", false, p)
	r.DefineBool("LocalPreAuthorize", false, p)
	r.DefineBool("LocalAuthorizeOffline", true, p)
	r.DefineBool("AllowOfflineTxForUnknownId", false, p)
	r.DefineInt("AuthorizationTimeoutSeconds", 20, p)
	r.DefineBool("FreeVendActive", false, p)
	r.DefineString("FreeVendIdTag", "A0000000", p)
	r.DefineInt("ChargeProfileMaxStackLevel", 8)
	r.DefineString("ChargingScheduleAllowedChargingRateUnit", "Current,Power")
	r.DefineInt("MaxChargingProfilesInstalled", 10)
	r.DefineInt("GetConfigurationMaxKeys", 100)
	r.DefineString("SupportedFeatureProfiles", "Core,FirmwareManagement,LocalAuthListManagement,Reservation,SmartCharging,RemoteTrigger")
	r.DefineInt("NumberOfConnectors", len(sys.connIDs)-1)

	for _, key := range []string{
		"MeterValueSampleInterval", "ClockAlignedDataInterval",
		"MeterValuesSampledData", "MeterValuesAlignedData",
		"StopTxnSampledData", "StopTxnAlignedData",
		"StopTxnSampledDataCapturePeriodic", "StopTxnDataMaxSize",
	} {
		r.Observe(key, sys.onMeterConfigChanged)
	}
	r.Observe("MinimumStatusDuration", sys.onMinimumStatusDurationChanged)
	for _, key := range []string{
		"StopTransactionOnInvalidId", "LocalPreAuthorize", "LocalAuthorizeOffline",
		"AllowOfflineTxForUnknownId", "AuthorizationTimeoutSeconds",
		"FreeVendActive", "FreeVendIdTag", "ConnectionTimeOut",
	} {
		r.Observe(key, sys.onSessionPolicyChanged)
	}
}

// onMeterConfigChanged re-applies the metering configuration to every
// connector's Service whenever a relevant key changes.
func (sys *System) onMeterConfigChanged(key, value string) {
	for _, cs := range sys.connectors {
		if cs.meter != nil {
			sys.wireMeterFromConfig(cs.meter)
		}
	}
}

func (sys *System) onMinimumStatusDurationChanged(key, value string) {
	seconds, _ := sys.registry.GetInt("MinimumStatusDuration")
	for _, cs := range sys.connectors {
		cs.conn.SetMinimumStatusDuration(seconds)
	}
}

func (sys *System) onSessionPolicyChanged(key, value string) {
	for _, cs := range sys.connectors {
		if cs.sess == nil {
			continue
		}
		cs.policy = sys.policyFromConfig()
	}
}

func (sys *System) wireMeterFromConfig(m *meter.Service) {
	sampleInterval, _ := sys.registry.GetInt("MeterValueSampleInterval")
	alignedInterval, _ := sys.registry.GetInt("ClockAlignedDataInterval")
	sampledData, _ := sys.registry.GetString("MeterValuesSampledData")
	alignedData, _ := sys.registry.GetString("MeterValuesAlignedData")
	stopSampled, _ := sys.registry.GetString("StopTxnSampledData")
	stopAligned, _ := sys.registry.GetString("StopTxnAlignedData")
	stopPeriodic, _ := sys.registry.GetBool("StopTxnSampledDataCapturePeriodic")

	m.SetSampleInterval(sampleInterval)
	m.SetClockAlignedInterval(alignedInterval)
	m.SetSelection(meter.CollectionSampled, sampledData)
	m.SetSelection(meter.CollectionAligned, alignedData)
	m.SetSelection(meter.CollectionStopTxnSampled, stopSampled)
	m.SetSelection(meter.CollectionStopTxnAligned, stopAligned)
	m.SetStopTxnDataCapturePeriodic(stopPeriodic)
}

func (sys *System) stopTxMaxSize() int {
	n, ok := sys.registry.GetInt("StopTxnDataMaxSize")
	if !ok {
		return 24
	}
	return n
}

func (sys *System) policyFromConfig() connector.Policy {
	authTimeout, _ := sys.registry.GetInt("AuthorizationTimeoutSeconds")
	connTimeout, _ := sys.registry.GetInt("ConnectionTimeOut")
	localPreAuth, _ := sys.registry.GetBool("LocalPreAuthorize")
	localAuthOffline, _ := sys.registry.GetBool("LocalAuthorizeOffline")
	allowOffline, _ := sys.registry.GetBool("AllowOfflineTxForUnknownId")
	stopOnInvalid, _ := sys.registry.GetBool("StopTransactionOnInvalidId")
	freeVend, _ := sys.registry.GetBool("FreeVendActive")
	freeVendTag, _ := sys.registry.GetString("FreeVendIdTag")

	return connector.Policy{
		AuthorizationTimeout:       time.Duration(authTimeout) * time.Second,
		LocalPreAuthorize:          localPreAuth,
		LocalAuthorizeOffline:      localAuthOffline,
		AllowOfflineTxForUnknownId: allowOffline,
		StopTransactionOnInvalidId: stopOnInvalid,
		SilentOfflineTransactions:  true,
		ConnectionTimeout:          time.Duration(connTimeout) * time.Second,
		FreeVendActive:             freeVend,
		FreeVendIdTag:              freeVendTag,
		IsOnline:                   func() bool { return sys.transport != nil && sys.transport.IsConnected() },
	}
}
