package migrations

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"village_market/internal/database"
	"village_market/internal/models"
	"village_market/internal/repository"
	"village_market/internal/services"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AdminSeed is the back-office account created on first start.
type AdminSeed struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

var defaultCategories = []struct {
	name string
	icon models.CategoryIcon
}{
	{"Sayuran", models.IconVegetables},
	{"Buah", models.IconFruits},
	{"Daging", models.IconMeat},
	{"Ikan", models.IconFish},
	{"Camilan", models.IconSnacks},
	{"Minuman", models.IconDrinks},
	{"Rumah Tangga", models.IconHousehold},
	{"Kerajinan", models.IconCrafts},
	{"Lainnya", models.IconOther},
}

// RunMigrations brings the schema up to date and creates default data.
func RunMigrations(db *gorm.DB, admin AdminSeed) error {
	log.Println("Running database migrations...")
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := createDefaultData(context.Background(), db, admin); err != nil {
		log.Printf("Warning: Failed to create default data: %v", err)
	}

	log.Println("Database migrations completed successfully!")
	return nil
}

// createDefaultData is idempotent: existing rows are left alone.
func createDefaultData(ctx context.Context, db *gorm.DB, admin AdminSeed) error {
	categoryRepo := repository.NewCategoryRepository(db)
	existing, err := categoryRepo.GetAll(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		log.Println("Creating default categories...")
		for _, c := range defaultCategories {
			category := &models.Category{
				Name: c.name,
				Slug: services.Slugify(c.name),
				Icon: c.icon,
			}
			if err := categoryRepo.Create(ctx, category); err != nil {
				return fmt.Errorf("failed to create category %s: %w", c.name, err)
			}
		}
	}

	if admin.Email == "" || admin.Password == "" {
		log.Println("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin account")
		return nil
	}

	userRepo := repository.NewUserRepository(db)
	email := strings.ToLower(strings.TrimSpace(admin.Email))
	_, err = userRepo.GetByEmail(ctx, email)
	if err == nil {
		log.Println("Admin user already exists")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := &models.User{
		Email:        email,
		PasswordHash: string(hashed),
		FullName:     admin.FullName,
		PhoneNumber:  admin.Phone,
		Role:         string(models.Admin),
	}
	if err := userRepo.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	log.Printf("Admin user %s created", email)
	return nil
}
