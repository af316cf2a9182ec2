package models

import (
	"strings"
	"time"
)

type Address struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"size:36;index;not null"`
	Name      string    `json:"name" gorm:"not null"`
	Phone     string    `json:"phone" gorm:"not null"`
	Detail    string    `json:"detail" gorm:"type:text;not null"`
	City      string    `json:"city"`
	Kelurahan string    `json:"kelurahan"`
	Kecamatan string    `json:"kecamatan"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	IsDefault bool      `json:"is_default" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullText renders the address the way it is denormalized onto an order.
func (a Address) FullText() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Detail, a.Kelurahan, a.Kecamatan, a.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
