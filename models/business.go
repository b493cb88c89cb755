package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"bitbucket.org/mmdatafocus/loans_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Business struct {
	ID             string          `gorm:"primary_key;size:64" json:"id"`
	Name           string          `gorm:"index;size:100;not null" json:"name" binding:"required"`
	OwnerName      string          `gorm:"size:100" json:"owner_name"`
	Email          string          `gorm:"size:255" json:"email"`
	Phone          string          `gorm:"size:20" json:"phone"`
	Address        string          `gorm:"type:text" json:"address"`
	InitialCapital decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"initial_capital"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_balance"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name           string          `json:"name" binding:"required"`
	OwnerName      string          `json:"owner_name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	Address        string          `json:"address"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
}

// InitialCapital is set once at creation and never mutated afterwards.
func (b *Business) BeforeUpdate(tx *gorm.DB) error {
	if tx == nil || tx.Statement == nil || tx.Statement.Schema == nil {
		return nil
	}
	if tx.Statement.Changed("InitialCapital") {
		return errors.New("initial capital is immutable")
	}
	return nil
}

func (business *Business) StoreRedis() error {
	return config.SetRedisObject("Business:"+business.ID, business, 0)
}

func (business *Business) RemoveRedis() error {
	return config.RemoveRedisKey("Business:" + business.ID)
}

// CreateBusiness inserts the business and seeds its ledger with the
// initial_capital movement so balance replay always starts from a recorded row.
func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	if input.InitialCapital.IsNegative() {
		return nil, errors.New("initial capital cannot be negative")
	}

	business := Business{
		ID:             uuid.NewString(),
		Name:           input.Name,
		OwnerName:      input.OwnerName,
		Email:          input.Email,
		Phone:          input.Phone,
		Address:        input.Address,
		InitialCapital: input.InitialCapital,
		CurrentBalance: input.InitialCapital,
		IsActive:       utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&business).Error; err != nil {
			return err
		}
		if business.InitialCapital.IsPositive() {
			movement := CashMovement{
				BusinessId:   business.ID,
				MovementType: MovementTypeInitialCapital,
				Amount:       business.InitialCapital,
				BalanceAfter: business.InitialCapital,
				Description:  fmt.Sprintf("Initial capital for %s", business.Name),
			}
			if err := tx.Create(&movement).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := business.StoreRedis(); err != nil {
		config.LogError(config.GetLogger(), "business.go", "CreateBusiness", "StoreRedis", business.ID, err)
	}
	return &business, nil
}

type UpdateBusinessInput struct {
	Name      *string `json:"name"`
	OwnerName *string `json:"owner_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	IsActive  *bool   `json:"is_active"`
}

// UpdateBusiness changes contact fields only; capital and balance move
// exclusively through the ledger.
func UpdateBusiness(ctx context.Context, id string, input *UpdateBusinessInput) (*Business, error) {
	db := config.GetDB()
	var business Business
	if err := db.WithContext(ctx).Where("id = ?", id).First(&business).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.OwnerName != nil {
		updates["owner_name"] = *input.OwnerName
	}
	if input.Email != nil {
		updates["email"] = *input.Email
	}
	if input.Phone != nil {
		updates["phone"] = *input.Phone
	}
	if input.Address != nil {
		updates["address"] = *input.Address
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return &business, nil
	}

	if err := db.WithContext(ctx).Model(&business).Updates(updates).Error; err != nil {
		return nil, err
	}
	// Invalidate the cache; the next read repopulates it.
	if err := business.RemoveRedis(); err != nil {
		config.LogError(config.GetLogger(), "business.go", "UpdateBusiness", "RemoveRedis", id, err)
	}
	return &business, nil
}

// GetBusinessById reads through the redis cache first.
func GetBusinessById(ctx context.Context, id string) (*Business, error) {
	var business Business
	exists, err := config.GetRedisObject("Business:"+id, &business)
	if err != nil {
		config.LogError(config.GetLogger(), "business.go", "GetBusinessById", "GetRedisObject", id, err)
	}
	if exists {
		return &business, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", id).First(&business).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &business, nil
}

// GetBusinessForUpdate loads the business row with an exclusive lock.
// Every balance mutation must go through this so two concurrent movements
// cannot both read the same current_balance (lost-update race).
func GetBusinessForUpdate(tx *gorm.DB, id string) (*Business, error) {
	var business Business
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&business).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &business, nil
}
