package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Category struct {
	ID        uint         `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"not null"`
	Slug      string       `json:"slug" gorm:"uniqueIndex;not null"`
	Icon      CategoryIcon `json:"icon" gorm:"type:varchar(32);not null"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// CategoryIcon is the closed set of icon keys the storefront knows how to
// render.
type CategoryIcon string

const (
	IconVegetables CategoryIcon = "vegetables"
	IconFruits     CategoryIcon = "fruits"
	IconMeat       CategoryIcon = "meat"
	IconFish       CategoryIcon = "fish"
	IconSnacks     CategoryIcon = "snacks"
	IconDrinks     CategoryIcon = "drinks"
	IconHousehold  CategoryIcon = "household"
	IconCrafts     CategoryIcon = "crafts"
	IconOther      CategoryIcon = "other"
)

var categoryIcons = map[string]CategoryIcon{
	"vegetables": IconVegetables,
	"fruits":     IconFruits,
	"meat":       IconMeat,
	"fish":       IconFish,
	"snacks":     IconSnacks,
	"drinks":     IconDrinks,
	"household":  IconHousehold,
	"crafts":     IconCrafts,
	"other":      IconOther,
}

// ParseCategoryIcon looks key up in the icon table. Unknown keys are an
// error, there is no fallback icon.
func ParseCategoryIcon(key string) (CategoryIcon, error) {
	icon, ok := categoryIcons[key]
	if !ok {
		return "", fmt.Errorf("unknown category icon %q", key)
	}
	return icon, nil
}

type Product struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	CategoryID  uint           `json:"category_id" gorm:"index"`
	Category    *Category      `json:"category,omitempty"`
	Name        string         `json:"name" gorm:"not null"`
	Description string         `json:"description" gorm:"type:text"`
	Price       int64          `json:"price" gorm:"not null"`
	Stock       int            `json:"stock" gorm:"default:0"`
	ImageURL    string         `json:"image_url"`
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

type FlashSale struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ProductID uint      `json:"product_id" gorm:"index;not null"`
	Product   *Product  `json:"product,omitempty"`
	SalePrice int64     `json:"sale_price" gorm:"not null"`
	StartsAt  time.Time `json:"starts_at" gorm:"not null"`
	EndsAt    time.Time `json:"ends_at" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// ActiveAt reports whether the sale window contains t. The end is exclusive.
func (f FlashSale) ActiveAt(t time.Time) bool {
	return !t.Before(f.StartsAt) && t.Before(f.EndsAt)
}

type Banner struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Title     string    `json:"title" gorm:"not null"`
	ImageURL  string    `json:"image_url" gorm:"not null"`
	LinkURL   string    `json:"link_url"`
	Position  int       `json:"position" gorm:"default:0"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
