package models

import (
	"time"
)

// OrderItem is a snapshot taken at placement time; later product edits do
// not touch it.
type OrderItem struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	OrderID     string    `json:"order_id" gorm:"size:36;index;not null"`
	ProductID   uint      `json:"product_id"`
	ProductName string    `json:"product_name" gorm:"not null"`
	Quantity    int       `json:"quantity" gorm:"not null"`
	Price       int64     `json:"price" gorm:"not null"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}
