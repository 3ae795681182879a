package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/shopspring/decimal"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/ecpay"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/handlers"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/middleware"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Redis is optional; without it the conditional updates in the ledger
	// are the only duplicate-callback defense.
	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, continuing without cache: %v", err)
			cache = nil
		}
	}

	gatewayCfg := ecpay.ConfigFromEnv()
	gateway := ecpay.NewClient(gatewayCfg)

	feeRate := decimal.Zero
	if raw := os.Getenv("PLATFORM_FEE_RATE"); raw != "" {
		feeRate, err = decimal.NewFromString(raw)
		if err != nil {
			log.Fatalf("Invalid PLATFORM_FEE_RATE %q: %v", raw, err)
		}
	}

	paymentService := services.NewPaymentService(db, gateway, feeRate)
	callbackService := services.NewCallbackService(db, cache, gatewayCfg.HashKey, gatewayCfg.HashIV)
	refundService := services.NewRefundService(db, gateway)
	courseService := services.NewCourseService(db, cache)

	e := echo.New()
	e.HideBanner = true
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.HTTPErrorHandler = middleware.APIErrorHandler

	paymentHandler := handlers.NewPaymentHandler(paymentService, callbackService, refundService, courseService, gateway)
	courseHandler := handlers.NewCourseHandler(db)
	userHandler := handlers.NewUserHandler(db)
	videoHandler := handlers.NewVideoHandler(db)

	api := e.Group("/api/v1")

	// Gateway-facing routes, no auth: the callback authenticates itself
	// via CheckMacValue, the checkout page via the unguessable order number.
	api.POST("/payment/callback", paymentHandler.Callback)
	api.GET("/payment/checkout/:order_no", paymentHandler.CheckoutPage)

	// Browser-facing result page the gateway posts the payer back to; the
	// path matches the default ECPAY_RETURN_URL.
	e.POST("/payment/result", paymentHandler.PaymentResult)

	// Public catalog
	api.GET("/courses", courseHandler.ListCourses)
	api.GET("/courses/:id", courseHandler.GetCourse)

	// Member routes
	member := api.Group("", middleware.RequireUser())
	member.GET("/users/me", userHandler.Me)
	member.GET("/enrollments", userHandler.ListEnrollments)
	member.POST("/payment/orders", paymentHandler.CreateOrder)
	member.GET("/payment/orders/:id", paymentHandler.GetOrder)
	member.POST("/payment/orders/:id/refund-request", paymentHandler.RequestRefund)

	// Admin routes
	admin := api.Group("/payment/admin", middleware.RequireAdmin())
	admin.GET("/orders", paymentHandler.ListOrders)
	admin.POST("/orders/:id/sync", paymentHandler.SyncStatus)
	admin.POST("/orders/:id/refund", paymentHandler.AdminRefund)
	admin.POST("/refunds/:id/review", paymentHandler.ReviewRefund)
	admin.GET("/refunds", paymentHandler.ListRefunds)
	admin.GET("/stats", paymentHandler.Stats)

	adminContent := api.Group("", middleware.RequireAdmin())
	adminContent.POST("/videos", videoHandler.CreateVideo)
	adminContent.GET("/videos/:id", videoHandler.GetVideo)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
