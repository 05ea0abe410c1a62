// seed loads the demo customers into the configured PostgreSQL database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bibbank/origination/internal/infrastructure/config"
	pgRepo "github.com/bibbank/origination/internal/infrastructure/persistence/postgres"
	"github.com/bibbank/origination/internal/infrastructure/seed"
	"github.com/bibbank/origination/pkg/money"
	"github.com/bibbank/origination/pkg/observability"
	pkgpostgres "github.com/bibbank/origination/pkg/postgres"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := observability.InitLogger(observability.LogConfig{Level: cfg.LogLevel, Format: "text"})

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dbCancel()
	pool, err := pkgpostgres.NewPool(dbCtx, cfg.Postgres())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if _, err := seed.Customers(ctx, pgRepo.NewCustomerRepo(pool), logger); err != nil {
		return err
	}

	customers, err := seed.DemoCustomers(time.Now())
	if err != nil {
		return err
	}
	for _, c := range customers {
		fmt.Printf("%-20s | Phone: %s | Score: %d | Limit: %s\n",
			c.Name(), c.Phone(), c.CreditScore(), money.Rupees(c.PreApprovedLimit()))
	}
	fmt.Println()
	fmt.Println("Instant approval:  9876543210")
	fmt.Println("Salary required:   9876543211")
	fmt.Println("Rejection:         9876543212")
	return nil
}
