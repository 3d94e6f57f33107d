package model

import "time"

// Device is a registered client device. Devices are created on first authentication.
type Device struct {
	DeviceID          string    `json:"deviceId"`
	CreatedAt         time.Time `json:"createdAt"`
	LastAuthenticated time.Time `json:"lastAuthenticated"`
}
