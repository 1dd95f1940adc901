package api

import "github.com/rickgao/airvpn-bridge/internal/model"

// Endpoint paths, relative to the base URL.
const (
	PathUserInfo = "/userinfo/"
	PathDevices  = "/devices/"
)

// UserInfoResponse from GET /userinfo/
type UserInfoResponse struct {
	User     model.Record   `json:"user"`
	Sessions []model.Record `json:"sessions"`
}

// DevicesResponse from GET /devices/
type DevicesResponse struct {
	Devices []model.Record `json:"devices"`
}
