package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/skybridge-ai/compute-plane/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Init() error {
	dbPath := config.Cfg.DatabasePath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(&ProvisionedResource{}, &IntegrationCredential{}, &Setting{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

// Resource helpers

func CreateResource(r *ProvisionedResource) error {
	return DB.Create(r).Error
}

func GetResource(id string) (*ProvisionedResource, error) {
	var r ProvisionedResource
	if err := DB.Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

func SaveResource(r *ProvisionedResource) error {
	return DB.Save(r).Error
}

func ListResourcesByOrganization(orgID string) ([]ProvisionedResource, error) {
	var resources []ProvisionedResource
	if err := DB.Where("organization_id = ?", orgID).Order("created_at desc").Find(&resources).Error; err != nil {
		return nil, err
	}
	return resources, nil
}

// ListActiveResources returns every resource still in the active state,
// across all organizations. Used by the TTL reaper.
func ListActiveResources() ([]ProvisionedResource, error) {
	var resources []ProvisionedResource
	if err := DB.Where("status = ?", StatusActive).Find(&resources).Error; err != nil {
		return nil, err
	}
	return resources, nil
}

// Integration credential helpers

func GetIntegrationCredential(orgID, provider string) (*IntegrationCredential, error) {
	var c IntegrationCredential
	if err := DB.Where("organization_id = ? AND provider = ?", orgID, provider).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func SetIntegrationCredential(orgID, provider, encryptedToken string) error {
	return DB.Where("organization_id = ? AND provider = ?", orgID, provider).
		Assign(IntegrationCredential{Token: encryptedToken}).
		FirstOrCreate(&IntegrationCredential{OrganizationID: orgID, Provider: provider}).Error
}
