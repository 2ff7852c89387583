package repository

import (
	"github.com/scoutpost/ScoutPost/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	GetByProviderCustomerID(customerID string) (*models.User, error)
	Update(user *models.User) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// SettingRepository defines the interface for setting-related database operations
type SettingRepository interface {
	GetValue(key string) (string, error)
	SetValue(key, value string) error
	List() ([]models.Setting, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User    UserRepository
	Setting SettingRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Setting: NewSettingRepository(db),
	}
}
