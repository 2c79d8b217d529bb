package smartcharge

import (
	"encoding/json"

	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

func marshalProfile(p *v16.ChargingProfile) ([]byte, error) {
	return json.Marshal(p)
}

func unmarshalProfile(data []byte) (*v16.ChargingProfile, error) {
	var p v16.ChargingProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
