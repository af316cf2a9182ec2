package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"village_market/internal/geo"
	"village_market/internal/models"
	"village_market/internal/repository"

	"gorm.io/gorm"
)

type AddressInput struct {
	Name      string   `json:"name" binding:"required"`
	Phone     string   `json:"phone" binding:"required"`
	Detail    string   `json:"detail" binding:"required"`
	City      string   `json:"city"`
	Kelurahan string   `json:"kelurahan"`
	Kecamatan string   `json:"kecamatan"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	IsDefault bool     `json:"is_default"`
}

type AddressService interface {
	List(ctx context.Context, session *models.Session) ([]models.Address, error)
	Get(ctx context.Context, session *models.Session, id uint) (*models.Address, error)
	Create(ctx context.Context, session *models.Session, input AddressInput) (*models.Address, error)
	Update(ctx context.Context, session *models.Session, id uint, input AddressInput) (*models.Address, error)
	Delete(ctx context.Context, session *models.Session, id uint) error
	SetDefault(ctx context.Context, session *models.Session, id uint) (*models.Address, error)
}

type addressService struct {
	db          *gorm.DB
	addressRepo repository.AddressRepository
}

func NewAddressService(db *gorm.DB, addressRepo repository.AddressRepository) AddressService {
	return &addressService{db: db, addressRepo: addressRepo}
}

func (s *addressService) List(ctx context.Context, session *models.Session) ([]models.Address, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	return s.addressRepo.GetByUserID(ctx, session.UserID)
}

func (s *addressService) Get(ctx context.Context, session *models.Session, id uint) (*models.Address, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	address, err := s.addressRepo.GetByIDForUser(ctx, session.UserID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}
	return address, nil
}

// Create stores a new address. The user's first address always becomes the
// default one.
func (s *addressService) Create(ctx context.Context, session *models.Session, input AddressInput) (*models.Address, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	address := &models.Address{UserID: session.UserID}
	if err := applyAddressInput(address, input); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.addressRepo.WithTx(tx)
		count, err := repo.CountByUserID(ctx, session.UserID)
		if err != nil {
			return err
		}
		address.IsDefault = input.IsDefault || count == 0
		if address.IsDefault {
			if err := repo.ClearDefault(ctx, session.UserID); err != nil {
				return err
			}
		}
		return repo.Create(ctx, address)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create address: %w", err)
	}
	return address, nil
}

func (s *addressService) Update(ctx context.Context, session *models.Session, id uint, input AddressInput) (*models.Address, error) {
	address, err := s.Get(ctx, session, id)
	if err != nil {
		return nil, err
	}
	if err := applyAddressInput(address, input); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.addressRepo.WithTx(tx)
		if input.IsDefault && !address.IsDefault {
			if err := repo.ClearDefault(ctx, session.UserID); err != nil {
				return err
			}
			address.IsDefault = true
		}
		return repo.Update(ctx, address)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update address: %w", err)
	}
	return address, nil
}

// Delete removes the address. When it was the default, the oldest remaining
// address takes over.
func (s *addressService) Delete(ctx context.Context, session *models.Session, id uint) error {
	address, err := s.Get(ctx, session, id)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.addressRepo.WithTx(tx)
		if _, err := repo.Delete(ctx, session.UserID, id); err != nil {
			return err
		}
		if !address.IsDefault {
			return nil
		}
		remaining, err := repo.GetByUserID(ctx, session.UserID)
		if err != nil || len(remaining) == 0 {
			return err
		}
		oldest := remaining[0]
		for _, a := range remaining[1:] {
			if a.CreatedAt.Before(oldest.CreatedAt) {
				oldest = a
			}
		}
		_, err = repo.MarkDefault(ctx, session.UserID, oldest.ID)
		return err
	})
}

// SetDefault clears the previous default and marks id in one transaction, so
// a user never ends up with two defaults.
func (s *addressService) SetDefault(ctx context.Context, session *models.Session, id uint) (*models.Address, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	var address *models.Address
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.addressRepo.WithTx(tx)
		found, err := repo.GetByIDForUser(ctx, session.UserID, id)
		if err != nil {
			return err
		}
		if err := repo.ClearDefault(ctx, session.UserID); err != nil {
			return err
		}
		if _, err := repo.MarkDefault(ctx, session.UserID, id); err != nil {
			return err
		}
		found.IsDefault = true
		address = found
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to set default address: %w", err)
	}
	return address, nil
}

func applyAddressInput(address *models.Address, input AddressInput) error {
	name := strings.TrimSpace(input.Name)
	phone := strings.TrimSpace(input.Phone)
	detail := strings.TrimSpace(input.Detail)
	if name == "" || phone == "" || detail == "" {
		return fmt.Errorf("%w: name, phone and detail are required", ErrValidation)
	}
	if input.Latitude == nil || input.Longitude == nil {
		return fmt.Errorf("%w: latitude and longitude are required", ErrValidation)
	}
	point := geo.Point{Latitude: *input.Latitude, Longitude: *input.Longitude}
	if !point.Valid() {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}

	address.Name = name
	address.Phone = phone
	address.Detail = detail
	address.City = strings.TrimSpace(input.City)
	address.Kelurahan = strings.TrimSpace(input.Kelurahan)
	address.Kecamatan = strings.TrimSpace(input.Kecamatan)
	address.Latitude = point.Latitude
	address.Longitude = point.Longitude
	return nil
}
