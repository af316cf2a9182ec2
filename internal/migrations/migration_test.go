package migrations

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"village_market/internal/models"
	"village_market/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestRunMigrations_SeedsOnce(t *testing.T) {
	db := openTestDB(t)

	admin := AdminSeed{Email: "Admin@Desa.id", Password: "rahasia123", FullName: "Admin Desa"}
	require.NoError(t, RunMigrations(db, admin))
	require.NoError(t, RunMigrations(db, admin))

	ctx := context.Background()
	categories, err := repository.NewCategoryRepository(db).GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, len(defaultCategories))
	for _, c := range categories {
		_, err := models.ParseCategoryIcon(string(c.Icon))
		assert.NoError(t, err, c.Name)
	}

	var admins int64
	require.NoError(t, db.Model(&models.User{}).Where("role = ?", "admin").Count(&admins).Error)
	assert.Equal(t, int64(1), admins)

	user, err := repository.NewUserRepository(db).GetByEmail(ctx, "admin@desa.id")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("rahasia123")))
}

func TestRunMigrations_NoAdminWithoutCredentials(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, RunMigrations(db, AdminSeed{}))

	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, users)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}
