package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/finledger/backend/src/config"
	"github.com/username/finledger/backend/src/database"
	"github.com/username/finledger/backend/src/handlers"
	"github.com/username/finledger/backend/src/logger"
	"github.com/username/finledger/backend/src/parsers"
	"github.com/username/finledger/backend/src/parsers/bankcsv"
	"github.com/username/finledger/backend/src/parsers/sharedledger"
	"github.com/username/finledger/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("FinLedger backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	db, err := database.Connect(config.Cfg.DatabasePath)
	if err != nil {
		logger.L.Error("Failed to open database", "path", config.Cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(db); err != nil {
		logger.L.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	registry := parsers.NewRegistry()
	registry.Register(bankcsv.NewParser())
	registry.Register(sharedledger.NewParser())

	importService := services.NewImportService(db, registry, reportCache)
	transactionService := services.NewTransactionService(db, config.Cfg.ReconcileDateToleranceDays)
	ruleService := services.NewRuleService(db, reportCache)

	importHandler := handlers.NewImportHandler(importService)
	txHandler := handlers.NewTransactionHandler(transactionService)
	ruleHandler := handlers.NewRuleHandler(ruleService)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "FinLedger Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		r.Get("/parsers", importHandler.HandleListParsers)
		r.Post("/imports", importHandler.HandleImport)
		r.Post("/imports/shared", importHandler.HandleSharedImport)
		r.Get("/sourcefiles", txHandler.HandleListSourceFiles)
		r.Post("/reconcile", txHandler.HandleReconcile)

		r.Get("/transactions", txHandler.HandleListTransactions)
		r.Get("/transactions/{id}", txHandler.HandleGetTransaction)
		r.Patch("/transactions/{id}/category", txHandler.HandleSetCategory)
		r.Patch("/transactions/{id}/exclusion", txHandler.HandleSetExclusion)
		r.Get("/transactions/{id}/splits", txHandler.HandleListSplits)
		r.Get("/transactions/{id}/rule-suggestion", ruleHandler.HandleSuggestRuleForTransaction)

		r.Get("/rules", ruleHandler.HandleListRules)
		r.Post("/rules", ruleHandler.HandleCreateRule)
		r.Patch("/rules/{id}", ruleHandler.HandleUpdateRule)
		r.Delete("/rules/{id}", ruleHandler.HandleDeleteRule)
		r.Post("/rules/preview", ruleHandler.HandlePreviewRule)
		r.Get("/rules/suggestions", ruleHandler.HandleRuleSuggestions)
		r.Post("/rules/recategorize", ruleHandler.HandleRecategorize)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
			return
		}
		http.NotFound(w, r)
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
