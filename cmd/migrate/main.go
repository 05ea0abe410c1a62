// migrate applies or rolls back the embedded PostgreSQL schema using the
// same DB_* settings as the service.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/bibbank/origination/internal/infrastructure/config"
	pgRepo "github.com/bibbank/origination/internal/infrastructure/persistence/postgres"
	pkgpostgres "github.com/bibbank/origination/pkg/postgres"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	dir := pkgpostgres.Direction(*direction)
	if dir != pkgpostgres.Up && dir != pkgpostgres.Down {
		fmt.Fprintf(os.Stderr, "unknown direction %q; use up or down\n", *direction)
		os.Exit(2)
	}

	if err := pkgpostgres.RunMigrations(cfg.Postgres().DSN(), pgRepo.Migrations, pgRepo.MigrationsDir, dir); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Printf("migrations %s complete for %s@%s/%s\n", dir, cfg.DBUser, cfg.DBHost, cfg.DBName)
}
