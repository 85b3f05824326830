package models

import "time"

// DeviceProfile stores the four-ID fingerprint (spec GLOSSARY "Device
// profile") associated with an account, so that switching the active
// account also switches which machine fingerprint the upstream sees.
type DeviceProfile struct {
	AccountID        string `gorm:"primaryKey"`
	MachineID        string
	MacMachineID     string
	DevDeviceID      string
	SqmID            string
	ServiceMachineID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
