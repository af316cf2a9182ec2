package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"village_market/internal/config"
	"village_market/internal/database"
	"village_market/internal/migrations"
	"village_market/internal/models"
	"village_market/internal/repository"

	"gorm.io/gorm"
)

type demoProduct struct {
	icon  models.CategoryIcon
	name  string
	desc  string
	price int64
	stock int
	lat   float64
	lng   float64
}

// Stalls around Desa Sukamaju, Bandung.
var demoProducts = []demoProduct{
	{models.IconVegetables, "Bayam Segar", "Bayam petik pagi dari kebun warga, per ikat.", 5000, 40, -6.9147, 107.6098},
	{models.IconVegetables, "Cabai Rawit", "Cabai rawit merah, per 250 gram.", 12000, 25, -6.9147, 107.6098},
	{models.IconFruits, "Pisang Ambon", "Satu sisir pisang ambon matang pohon.", 25000, 15, -6.9021, 107.6187},
	{models.IconMeat, "Ayam Kampung", "Ayam kampung utuh, sudah dibersihkan.", 85000, 8, -6.9302, 107.6011},
	{models.IconFish, "Ikan Mas", "Ikan mas kolam, per kilogram.", 40000, 12, -6.9410, 107.6250},
	{models.IconSnacks, "Keripik Singkong", "Keripik singkong pedas buatan ibu-ibu PKK.", 15000, 50, -6.9147, 107.6098},
	{models.IconDrinks, "Bandrek Instan", "Bandrek jahe merah, isi 10 sachet.", 20000, 30, -6.9021, 107.6187},
	{models.IconCrafts, "Tas Anyaman Pandan", "Tas anyaman pandan ukuran sedang.", 75000, 5, -6.9550, 107.5900},
}

func main() {
	reset := flag.Bool("reset", false, "drop all tables before migrating")
	flag.Parse()

	fmt.Println("Initializing database...")
	cfg := config.Load()

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if *reset {
		fmt.Println("Dropping existing tables...")
		if err := dropTables(db); err != nil {
			log.Fatal("Failed to drop tables:", err)
		}
	}

	admin := migrations.AdminSeed{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		FullName: "Admin Pasar Desa",
		Phone:    cfg.AdminWhatsApp,
	}
	if err := migrations.RunMigrations(db, admin); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	if err := seedCatalog(context.Background(), db); err != nil {
		log.Fatal("Failed to seed catalog:", err)
	}

	fmt.Println("Database initialization completed!")
}

func dropTables(db *gorm.DB) error {
	return db.Migrator().DropTable(
		&models.OrderItem{},
		&models.Order{},
		&models.CartItem{},
		&models.Address{},
		&models.FlashSale{},
		&models.Banner{},
		&models.Product{},
		&models.Category{},
		&models.User{},
	)
}

func seedCatalog(ctx context.Context, db *gorm.DB) error {
	productRepo := repository.NewProductRepository(db)
	existing, err := productRepo.List(ctx, repository.ProductFilter{Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		fmt.Println("Catalog already has products, skipping demo data")
		return nil
	}

	categories, err := repository.NewCategoryRepository(db).GetAll(ctx)
	if err != nil {
		return err
	}
	byIcon := make(map[models.CategoryIcon]uint, len(categories))
	for _, c := range categories {
		byIcon[c.Icon] = c.ID
	}

	var first *models.Product
	for _, p := range demoProducts {
		product := &models.Product{
			CategoryID:  byIcon[p.icon],
			Name:        p.name,
			Description: p.desc,
			Price:       p.price,
			Stock:       p.stock,
			Latitude:    p.lat,
			Longitude:   p.lng,
			IsActive:    true,
		}
		if err := productRepo.Create(ctx, product); err != nil {
			return fmt.Errorf("failed to create product %s: %w", p.name, err)
		}
		if first == nil {
			first = product
		}
		fmt.Printf("Created product: %s\n", p.name)
	}

	banner := &models.Banner{
		Title:    "Panen Raya Minggu Ini",
		ImageURL: "/static/banners/panen-raya.jpg",
		LinkURL:  "/products",
		IsActive: true,
	}
	if err := repository.NewBannerRepository(db).Create(ctx, banner); err != nil {
		return fmt.Errorf("failed to create banner: %w", err)
	}

	now := time.Now()
	sale := &models.FlashSale{
		ProductID: first.ID,
		SalePrice: first.Price * 80 / 100,
		StartsAt:  now,
		EndsAt:    now.Add(7 * 24 * time.Hour),
	}
	if err := repository.NewFlashSaleRepository(db).Create(ctx, sale); err != nil {
		return fmt.Errorf("failed to create flash sale: %w", err)
	}
	return nil
}
