package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultFreeTokens is granted to every newly provisioned user.
const DefaultFreeTokens = 10

type User struct {
	ID          uint   `gorm:"primaryKey"`
	Email       string `gorm:"size:256;uniqueIndex"`
	DisplayName string `gorm:"size:128"`
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProvisionUser creates the user together with their starting token
// balance.
func ProvisionUser(db *gorm.DB, user *User) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&TokenBalance{UserID: user.ID, Free: DefaultFreeTokens}).Error
	})
}

// Migrate creates all pipeline tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&ContentItem{},
		&AudioItem{},
		&TokenBalance{},
		&AudioJob{},
	)
}
