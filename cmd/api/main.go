package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bookstore-datastore/internal/cache"
	"bookstore-datastore/internal/config"
	"bookstore-datastore/internal/handler"
	"bookstore-datastore/internal/middleware"
	"bookstore-datastore/internal/model"
	"bookstore-datastore/internal/repository"
	"bookstore-datastore/internal/router"
	"bookstore-datastore/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting bookstore datastore...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.Store.Type, err)
	}
	defer store.Close()
	log.Printf("%s document store initialized", cfg.Store.Type)

	c, err := openCache(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s cache: %v", cfg.Cache.Type, err)
	}
	defer c.Close()
	log.Printf("%s cache initialized (namespace %q, ttl %v)", cfg.Cache.Type, cfg.Cache.Namespace, cfg.Cache.TTL)

	catalog := service.NewCatalogService(c, store, service.CatalogConfig{
		BooksCollection:      cfg.Collections.Books,
		BookstoresCollection: cfg.Collections.Bookstores,
		Namespace:            cfg.Cache.Namespace,
		TTL:                  cfg.Cache.TTL,
	})

	r := router.New(router.Config{
		Handler:          handler.New(c, store, cfg.App.Version),
		BookHandler:      handler.NewRecordHandler[model.Book, model.BookPatch](catalog.Books),
		BookstoreHandler: handler.NewRecordHandler[model.Bookstore, model.BookstorePatch](catalog.Bookstores),
		CatalogHandler:   handler.NewCatalogHandler(catalog),
		AdminHandler:     handler.NewAdminHandler(catalog, cfg.Cache.Type, cfg.Store.Type, cfg.Cache.Namespace),
		AuthMiddleware:   middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: cfg.Auth.APIKeys}),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}

// openStore initializes the document store selected by STORE_TYPE.
func openStore(cfg *config.Config) (repository.DocumentStore, error) {
	switch cfg.Store.Type {
	case "mongodb":
		mongoStore, err := repository.NewMongoDBDocumentStore(cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongoStore.EnsureIndex(ctx, cfg.Collections.Books, model.BookParentField); err != nil {
			log.Printf("Warning: %v", err)
		}
		return mongoStore, nil
	case "postgres":
		return repository.NewPostgresDocumentStore(cfg.Store.PostgresDSN())
	case "dynamodb":
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		return repository.NewDynamoDBDocumentStore(ctx, repository.DynamoDBConfig{
			Table:     cfg.Store.DynamoTable,
			Region:    cfg.Store.DynamoRegion,
			Endpoint:  cfg.Store.DynamoEndpoint,
			AccessKey: cfg.Store.DynamoAccessKey,
			SecretKey: cfg.Store.DynamoSecretKey,
		})
	case "mysql":
		return repository.NewMySQLDocumentStore(repository.MySQLConfig{
			Host:     cfg.Store.Host,
			Port:     cfg.Store.PortOr(3306),
			Name:     cfg.Store.Name,
			User:     cfg.Store.User,
			Password: cfg.Store.Password,
		})
	default: // sqlite
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return repository.NewSQLiteDocumentStore(cfg.Store.Path)
	}
}

// openCache initializes the cache selected by CACHE_TYPE.
func openCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Type {
	case "redis":
		return cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			PoolSize: cfg.Cache.RedisPoolSize,
		})
	case "nats":
		return cache.NewNATSCache(cache.NATSConfig{
			URL:    cfg.Cache.NATSURL,
			Bucket: cfg.Cache.NATSBucket,
		})
	default:
		return cache.NewMemoryCache(time.Minute), nil
	}
}
