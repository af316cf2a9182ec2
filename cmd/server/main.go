package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"village_market/internal/config"
	"village_market/internal/database"
	"village_market/internal/events"
	"village_market/internal/handlers"
	"village_market/internal/middleware"
	"village_market/internal/migrations"
	"village_market/internal/models"
	"village_market/internal/payment"
	"village_market/internal/redis"
	"village_market/internal/repository"
	"village_market/internal/services"
	"village_market/internal/shipping"
	"village_market/pkg/whatsapp"

	"github.com/gin-gonic/gin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	admin := migrations.AdminSeed{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		FullName: "Admin Pasar Desa",
		Phone:    cfg.AdminWhatsApp,
	}
	if err := migrations.RunMigrations(db, admin); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient, err := redis.Initialize(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	// Notifications and live events
	whatsappClient := whatsapp.NewClient(cfg.WhatsAppAPIURL, cfg.WhatsAppUsername, cfg.WhatsAppPassword, cfg.WhatsAppPath)
	whatsappService := services.NewWhatsAppService(whatsappClient, cfg.AdminWhatsApp)
	go whatsappService.Run(ctx)

	hub := events.NewHub(cfg.CORSOrigins...)
	go hub.Run()
	defer hub.Stop()

	publisher := events.Multi{hub, whatsappService}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Printf("Warning: Kafka disabled: %v", err)
		} else {
			defer kafkaPublisher.Close()
			publisher = append(publisher, kafkaPublisher)
		}
	}

	gateway := payment.NewMidtransGateway(cfg.MidtransServerKey, cfg.MidtransProduction)
	cacheTTL := time.Duration(cfg.CacheTTL) * time.Second
	lockTTL := time.Duration(cfg.CheckoutLockSeconds) * time.Second
	policy := shipping.Policy{RatePerKm: cfg.ShippingRatePerKm, MinFee: cfg.ShippingMinFee}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	productRepo := repository.NewProductRepository(db)
	flashSaleRepo := repository.NewFlashSaleRepository(db)
	bannerRepo := repository.NewBannerRepository(db)
	addressRepo := repository.NewAddressRepository(db)
	cartRepo := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	orderItemRepo := repository.NewOrderItemRepository(db)

	// Initialize services
	authService := services.NewAuthService(userRepo, redisClient, cfg.JWTSecret, cfg.JWTTTL, cacheTTL)
	catalogService := services.NewCatalogService(productRepo, categoryRepo, bannerRepo, flashSaleRepo, redisClient, cacheTTL)
	cartService := services.NewCartService(cartRepo, productRepo, flashSaleRepo)
	addressService := services.NewAddressService(db, addressRepo)
	checkoutService := services.NewCheckoutService(services.CheckoutDeps{
		DB:            db,
		Carts:         cartService,
		AddressRepo:   addressRepo,
		ProductRepo:   productRepo,
		OrderRepo:     orderRepo,
		OrderItemRepo: orderItemRepo,
		CartRepo:      cartRepo,
		Policy:        policy,
		Locker:        redisClient,
		LockTTL:       lockTTL,
		Publisher:     publisher,
	})
	paymentService := services.NewPaymentService(services.PaymentDeps{
		DB:          db,
		OrderRepo:   orderRepo,
		ProductRepo: productRepo,
		Gateway:     gateway,
		ServerKey:   cfg.MidtransServerKey,
		Locker:      redisClient,
		LockTTL:     lockTTL,
		Publisher:   publisher,
		Expiry:      cfg.PaymentExpiry,
	})
	orderService := services.NewOrderService(db, orderRepo, productRepo, publisher)
	reminderService := services.NewReminderService(services.ReminderDeps{
		DB:          db,
		OrderRepo:   orderRepo,
		ProductRepo: productRepo,
		Gateway:     gateway,
		Messenger:   whatsappClient,
		Publisher:   publisher,
		RemindAfter: cfg.PaymentReminder,
		ExpireAfter: cfg.PaymentExpiry,
	})
	go reminderService.Run(ctx, cfg.SweepInterval)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, cfg.JWTTTL)
	catalogHandler := handlers.NewCatalogHandler(catalogService)
	cartHandler := handlers.NewCartHandler(cartService)
	addressHandler := handlers.NewAddressHandler(addressService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	orderHandler := handlers.NewOrderHandler(orderService)
	whatsappHandler := handlers.NewWhatsAppHandler(orderService, whatsappClient, cfg.AdminWhatsApp, cfg.WhatsAppSecret)

	// Setup routes
	router := gin.Default()
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.Session(authService))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// WhatsApp webhook
	router.POST("/api/whatsapp/webhook", whatsappHandler.HandleWebhook)

	api := router.Group("/api")
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)
		api.GET("/auth/redirect", authHandler.Redirect)

		api.GET("/products", catalogHandler.ListProducts)
		api.GET("/products/suggest", catalogHandler.Suggest)
		api.GET("/products/:id", catalogHandler.GetProduct)
		api.GET("/categories", catalogHandler.ListCategories)
		api.GET("/banners", catalogHandler.ListBanners)
		api.GET("/flash-sales", catalogHandler.ListFlashSales)

		// Payment status and gateway notifications are not tied to a login.
		api.POST("/payment/status", paymentHandler.Status)
		api.POST("/payment/webhook", paymentHandler.Webhook)
	}

	user := api.Group("", middleware.RequireSession())
	{
		user.GET("/auth/me", authHandler.Me)
		user.POST("/auth/logout", authHandler.Logout)

		user.GET("/cart", cartHandler.Get)
		user.POST("/cart/items", cartHandler.AddItem)
		user.PATCH("/cart/items/:productId", cartHandler.UpdateItem)
		user.DELETE("/cart/items/:productId", cartHandler.RemoveItem)
		user.DELETE("/cart", cartHandler.Clear)

		user.GET("/addresses", addressHandler.List)
		user.POST("/addresses", addressHandler.Create)
		user.PUT("/addresses/:id", addressHandler.Update)
		user.DELETE("/addresses/:id", addressHandler.Delete)
		user.POST("/addresses/:id/default", addressHandler.SetDefault)

		user.GET("/checkout/quote", checkoutHandler.Quote)
		user.POST("/checkout", checkoutHandler.PlaceOrder)

		user.GET("/orders", orderHandler.List)
		user.GET("/orders/:id", orderHandler.Get)

		user.POST("/payment", paymentHandler.CreatePayment)
		user.POST("/payment/cod", paymentHandler.PayCOD)
	}

	adminGroup := api.Group("/admin", middleware.RequireRole(models.Admin))
	{
		adminGroup.GET("/ws", hub.ServeWS)

		adminGroup.POST("/products", catalogHandler.CreateProduct)
		adminGroup.PUT("/products/:id", catalogHandler.UpdateProduct)
		adminGroup.DELETE("/products/:id", catalogHandler.DeleteProduct)

		adminGroup.POST("/categories", catalogHandler.CreateCategory)
		adminGroup.PUT("/categories/:id", catalogHandler.UpdateCategory)
		adminGroup.DELETE("/categories/:id", catalogHandler.DeleteCategory)

		adminGroup.GET("/banners", catalogHandler.AdminListBanners)
		adminGroup.POST("/banners", catalogHandler.CreateBanner)
		adminGroup.PUT("/banners/:id", catalogHandler.UpdateBanner)
		adminGroup.DELETE("/banners/:id", catalogHandler.DeleteBanner)

		adminGroup.POST("/flash-sales", catalogHandler.CreateFlashSale)
		adminGroup.DELETE("/flash-sales/:id", catalogHandler.DeleteFlashSale)

		adminGroup.GET("/orders", orderHandler.AdminList)
		adminGroup.GET("/orders/:id", orderHandler.AdminGet)
		adminGroup.POST("/orders/:id/ship", orderHandler.Ship)
		adminGroup.POST("/orders/:id/complete", orderHandler.Complete)
		adminGroup.POST("/orders/:id/cancel", orderHandler.Cancel)
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}
	go func() {
		log.Printf("Server starting on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}
