package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"bitbucket.org/mmdatafocus/loans_backend/utils"
)

type Client struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;size:64;not null" json:"business_id" binding:"required"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Document   string    `gorm:"size:50" json:"document"`
	Email      string    `gorm:"size:100" json:"email"`
	Phone      string    `gorm:"size:20" json:"phone"`
	Address    string    `gorm:"type:text" json:"address"`
	Notes      string    `gorm:"type:text" json:"notes"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClient struct {
	Name     string `json:"name" binding:"required"`
	Document string `json:"document"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Notes    string `json:"notes"`
}

func CreateClient(ctx context.Context, businessId string, input *NewClient) (*Client, error) {
	if input.Document != "" {
		if err := utils.ValidateUnique[Client](ctx, businessId, "document", input.Document, 0); err != nil {
			return nil, err
		}
	}

	client := Client{
		BusinessId: businessId,
		Name:       input.Name,
		Document:   input.Document,
		Email:      input.Email,
		Phone:      input.Phone,
		Address:    input.Address,
		Notes:      input.Notes,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func GetClient(ctx context.Context, businessId string, id int) (*Client, error) {
	return utils.FetchModel[Client](ctx, businessId, id)
}

func GetClients(ctx context.Context, businessId string) ([]*Client, error) {
	return utils.FetchAllModels[Client](ctx, businessId)
}
