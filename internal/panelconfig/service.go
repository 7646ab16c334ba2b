package panelconfig

import "context"

// Service is the Configuration Service contract. Every mutation answers with
// an explicit acknowledgment: true means applied, false means the service
// declined. A non-nil error means the call itself failed.
type Service interface {
	GetConfig(ctx context.Context) (*Snapshot, error)
	SwitchProfile(ctx context.Context, profile Profile) (bool, error)
	Reload(ctx context.Context) (bool, error)
	UpdateEntityTypeFlag(ctx context.Context, entityType EntityType, dynamic bool) (bool, error)
	UpdateDeviceOverride(ctx context.Context, deviceID string, dynamic bool) (bool, error)
	RemoveDeviceOverride(ctx context.Context, deviceID string) (bool, error)
}

// Op identifies a service operation in logs, notifications and on the
// WebSocket transport.
type Op string

const (
	OpGetConfig            Op = "get_config"
	OpSwitchProfile        Op = "switch_profile"
	OpReload               Op = "reload"
	OpUpdateEntityType     Op = "update_entity_type"
	OpUpdateDeviceOverride Op = "update_device_override"
	OpRemoveDeviceOverride Op = "remove_device_override"
)

// Label is the human-readable form used in notifications.
func (o Op) Label() string {
	switch o {
	case OpGetConfig:
		return "Load configuration"
	case OpSwitchProfile:
		return "Switch profile"
	case OpReload:
		return "Reload configuration"
	case OpUpdateEntityType:
		return "Update entity type"
	case OpUpdateDeviceOverride:
		return "Update device override"
	case OpRemoveDeviceOverride:
		return "Remove device override"
	default:
		return string(o)
	}
}

// CommandType is the WebSocket message type for the operation.
func (o Op) CommandType() string {
	return "hubcfg/" + string(o)
}

// Wire bodies shared by the HTTP server and client.

// ProfileRequest is the body of POST /api/config/profile.
type ProfileRequest struct {
	Name Profile `json:"name"`
}

// FlagRequest is the body of the PUT flag/override endpoints.
type FlagRequest struct {
	IsDynamic bool `json:"is_dynamic"`
}

// AckResponse answers every mutation.
type AckResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is returned with non-2xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}
