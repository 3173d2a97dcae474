package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	cataloghandler "github.com/ricemill/ricemill-backend/internal/catalog/handler"
	catalogrepo "github.com/ricemill/ricemill-backend/internal/catalog/repository"
	catalogservice "github.com/ricemill/ricemill-backend/internal/catalog/service"
	financehandler "github.com/ricemill/ricemill-backend/internal/finance/handler"
	financerepo "github.com/ricemill/ricemill-backend/internal/finance/repository"
	financeservice "github.com/ricemill/ricemill-backend/internal/finance/service"
	"github.com/ricemill/ricemill-backend/internal/ledger"
	millinghandler "github.com/ricemill/ricemill-backend/internal/milling/handler"
	millingservice "github.com/ricemill/ricemill-backend/internal/milling/service"
	purchasinghandler "github.com/ricemill/ricemill-backend/internal/purchasing/handler"
	purchasingrepo "github.com/ricemill/ricemill-backend/internal/purchasing/repository"
	purchasingservice "github.com/ricemill/ricemill-backend/internal/purchasing/service"
	saleshandler "github.com/ricemill/ricemill-backend/internal/sales/handler"
	salesrepo "github.com/ricemill/ricemill-backend/internal/sales/repository"
	salesservice "github.com/ricemill/ricemill-backend/internal/sales/service"
	stockhandler "github.com/ricemill/ricemill-backend/internal/stock/handler"
	stockrepo "github.com/ricemill/ricemill-backend/internal/stock/repository"
	stockservice "github.com/ricemill/ricemill-backend/internal/stock/service"
	"github.com/ricemill/ricemill-backend/pkg/config"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/httputil"
	"github.com/ricemill/ricemill-backend/pkg/logger"
	"github.com/ricemill/ricemill-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("ricemill-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("ricemill-server", cfg.Server.Environment)
	log.Info().Msg("starting Rice Mill backend")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	inventoryPublisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, "ricemill-server", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create inventory event publisher")
	}
	purchasingPublisher, err := messaging.NewPublisher(rmq, messaging.ExchangePurchasingEvents, "ricemill-server", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create purchasing event publisher")
	}

	// Initialize repositories
	productRepo := catalogrepo.NewProductRepository(db)
	locationRepo := catalogrepo.NewLocationRepository(db)
	stockRepo := stockrepo.NewStockRepository(db)
	supplierRepo := purchasingrepo.NewSupplierRepository(db)
	poRepo := purchasingrepo.NewPurchaseOrderRepository(db)
	backorderRepo := purchasingrepo.NewBackorderRepository(db)
	returnRepo := purchasingrepo.NewPurchaseReturnRepository(db)
	orderRepo := salesrepo.NewOrderRepository(db)
	deliveryRepo := salesrepo.NewDeliveryRepository(db)
	financeRepo := financerepo.NewTransactionRepository(db)

	// Initialize the ledger and services
	led := ledger.New(log)
	catalogSvc := catalogservice.NewCatalogService(productRepo, locationRepo, log)
	stockSvc := stockservice.NewStockService(db, led, stockRepo, productRepo, locationRepo, inventoryPublisher, log)
	purchasingSvc := purchasingservice.NewPurchasingService(db, led, poRepo, backorderRepo, returnRepo,
		supplierRepo, productRepo, financeRepo, purchasingPublisher, log)
	millingSvc := millingservice.NewMillingService(db, led, productRepo, inventoryPublisher, log)
	salesSvc := salesservice.NewSalesService(db, led, orderRepo, deliveryRepo, productRepo, financeRepo, log)
	financeSvc := financeservice.NewFinanceService(financeRepo, log)

	// Initialize handlers
	productHandler := cataloghandler.NewProductHandler(catalogSvc, log)
	locationHandler := cataloghandler.NewLocationHandler(catalogSvc, log)
	stockHandler := stockhandler.NewStockHandler(stockSvc, log)
	supplierHandler := purchasinghandler.NewSupplierHandler(purchasingSvc, log)
	poHandler := purchasinghandler.NewPurchaseOrderHandler(purchasingSvc, log)
	backorderHandler := purchasinghandler.NewBackorderHandler(purchasingSvc, log)
	millingHandler := millinghandler.NewMillingHandler(millingSvc, log)
	salesHandler := saleshandler.NewSalesHandler(salesSvc, log)
	financeHandler := financehandler.NewFinanceHandler(financeSvc, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "ricemill-server",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	adminOnly := httputil.AdminOnly(cfg.Auth.Secret, cfg.Auth.Issuer)

	// API routes. Reads are open; every mutation sits behind the admin gate.
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Get("/low-stock", productHandler.LowStock)
			r.Get("/{id}", productHandler.Get)
			r.Get("/{id}/stock", stockHandler.GetByProduct)
			r.Get("/{id}/transactions", stockHandler.ListTransactions)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/", productHandler.Create)
				r.Put("/{id}", productHandler.Update)
				r.Delete("/{id}", productHandler.Delete)
			})
		})

		r.Route("/locations", func(r chi.Router) {
			r.Get("/", locationHandler.List)
			r.Get("/tree", locationHandler.GetTree)
			r.Get("/{id}", locationHandler.Get)
			r.Get("/{id}/stock", stockHandler.GetByLocation)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/", locationHandler.Create)
				r.Put("/{id}", locationHandler.Update)
				r.Delete("/{id}", locationHandler.Deactivate)
			})
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/assign", stockHandler.Assign)
			r.Post("/transfer", stockHandler.Transfer)
			r.Post("/adjust", stockHandler.Adjust)
			r.Post("/reconcile", stockHandler.Reconcile)
		})

		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", supplierHandler.List)
			r.Get("/{id}", supplierHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/", supplierHandler.Create)
				r.Put("/{id}", supplierHandler.Update)
			})
		})

		r.Route("/purchase-orders", func(r chi.Router) {
			r.Get("/", poHandler.List)
			r.Get("/{id}", poHandler.Get)
			r.Get("/{id}/returns", poHandler.ListReturns)
			r.Get("/{id}/finance", financeHandler.ListByPurchaseOrder)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/", poHandler.Create)
				r.Post("/{id}/place", poHandler.Place)
				r.Post("/{id}/cancel", poHandler.Cancel)
				r.Post("/{id}/receive", poHandler.Receive)
				r.Post("/{id}/returns", poHandler.CreateReturn)
			})
		})

		r.Route("/backorders", func(r chi.Router) {
			r.Get("/", backorderHandler.List)
			r.Get("/{id}", backorderHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/{id}/remind", backorderHandler.Remind)
			})
		})

		r.Route("/milling", func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/", millingHandler.Mill)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", salesHandler.ListOrders)
			r.Get("/{id}", salesHandler.GetOrder)
			r.Get("/{id}/finance", financeHandler.ListByOrder)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/", salesHandler.CreateOrder)
				r.Post("/{id}/deliveries", salesHandler.CreateDelivery)
			})
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/{id}", salesHandler.GetDelivery)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Put("/{id}/shipment-status", salesHandler.UpdateShipmentStatus)
				r.Post("/{id}/fulfill", salesHandler.Fulfill)
			})
		})

		r.Route("/finance", func(r chi.Router) {
			r.Get("/transactions", financeHandler.List)
			r.Get("/transactions/{id}", financeHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/transactions/{id}/pay", financeHandler.MarkPaid)
			})
		})
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}
