package models

import (
	"time"
)

type CartItem struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"size:36;uniqueIndex:idx_cart_user_product;not null"`
	ProductID uint      `json:"product_id" gorm:"uniqueIndex:idx_cart_user_product;not null"`
	Quantity  int       `json:"quantity" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartLine is a cart item joined with its product at read time.
type CartLine struct {
	ProductID        uint    `json:"product_id"`
	Name             string  `json:"name"`
	UnitPrice        int64   `json:"unit_price"`
	Quantity         int     `json:"quantity"`
	ImageURL         string  `json:"image_url"`
	ProductLatitude  float64 `json:"product_latitude"`
	ProductLongitude float64 `json:"product_longitude"`
	LineTotal        int64   `json:"line_total"`
	OnFlashSale      bool    `json:"on_flash_sale"`
}
