package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-admin-api/internal/models"
	"github.com/noah-isme/batch-admin-api/internal/repository"
	"github.com/noah-isme/batch-admin-api/internal/service"
	"github.com/noah-isme/batch-admin-api/pkg/config"
	"github.com/noah-isme/batch-admin-api/pkg/database"
	"github.com/noah-isme/batch-admin-api/pkg/logger"
)

// seed-user creates an operator account, e.g. the first ADMIN of a fresh database.
func main() {
	email := flag.String("email", "", "account email")
	name := flag.String("name", "", "full name")
	role := flag.String("role", string(models.RoleAdmin), "ADMIN, COORDINATOR or TRAINER")
	password := flag.String("password", os.Getenv("SEED_USER_PASSWORD"), "password (defaults to $SEED_USER_PASSWORD)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	authSvc := service.NewAuthService(repository.NewUserRepository(db), validator.New(), logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	user, err := authSvc.SeedUser(ctx, service.SeedUserRequest{
		Email:    *email,
		Password: *password,
		FullName: *name,
		Role:     models.UserRole(*role),
	})
	if err != nil {
		logr.Fatal("failed to seed user", zap.Error(err))
	}
	logr.Info("user created", zap.String("id", user.ID), zap.String("email", user.Email), zap.String("role", string(user.Role)))
}
