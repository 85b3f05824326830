package db

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nexusgate/oauth-llm-nexus/internal/cryptoutil"
	"github.com/nexusgate/oauth-llm-nexus/internal/db/models"
	"gorm.io/gorm"
)

// GenerateDeviceProfile produces a fresh four-ID fingerprint in the shape
// the original implementation's generate_profile() (device.rs) writes into
// the host IDE's storage.json: an auth0-style machineId, a standard v4
// machine id, a dev device UUID, an uppercase-braced SQM id, and a service
// machine id. Per spec §9 open question 4, serviceMachineId defaults to
// devDeviceId unless the caller overrides it afterward on the Account record.
func GenerateDeviceProfile(accountID string) models.DeviceProfile {
	devDeviceID := uuid.New().String()
	return models.DeviceProfile{
		AccountID:        accountID,
		MachineID:        fmt.Sprintf("auth0|user_%s", cryptoutil.NewDeviceID(16)),
		MacMachineID:     uuid.New().String(),
		DevDeviceID:      devDeviceID,
		SqmID:            fmt.Sprintf("{%s}", strings.ToUpper(uuid.New().String())),
		ServiceMachineID: devDeviceID,
	}
}

// SaveDeviceProfile persists profile atomically: either the full row is
// written or, on failure, nothing changes (a single upsert statement rather
// than separate delete+insert), satisfying the "four IDs written
// atomically" half of the spec's device-profile contract — the other half,
// writing them into the host IDE's own storage.json, is out of scope here.
func SaveDeviceProfile(db *gorm.DB, profile models.DeviceProfile) error {
	return db.Save(&profile).Error
}

// GetDeviceProfile returns the stored fingerprint for accountID, if any.
func GetDeviceProfile(db *gorm.DB, accountID string) (*models.DeviceProfile, error) {
	var profile models.DeviceProfile
	if err := db.Where("account_id = ?", accountID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}
