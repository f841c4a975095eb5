// Command seed provisions the singleton Owner at the root of the allocation
// hierarchy. Running it again against a seeded database is a no-op.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"

	"github.com/spacedesk/spacedesk/application/port/inbound"
	"github.com/spacedesk/spacedesk/application/usecase/allocation"
	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
	"github.com/spacedesk/spacedesk/infrastructure/persistence/postgres"
	"github.com/spacedesk/spacedesk/infrastructure/service/logger"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	name := getenvDefault("SEED_OWNER_NAME", "Platform Owner")
	hours, err := strconv.ParseFloat(getenvDefault("SEED_OWNER_HOURS", "10000"), 64)
	if err != nil {
		log.Fatalf("invalid SEED_OWNER_HOURS: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect db: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping db: %v", err)
	}

	structuredLogger := logger.New(logger.Config{Level: "info", Format: "text", ServiceName: "seed"})
	workflow := allocation.NewWorkflow(
		postgres.NewEntityRepository(db),
		postgres.NewEventRepository(db),
		clockwork.NewRealClock(),
		structuredLogger,
	)

	owner, err := workflow.CreateEntity(context.Background(), inbound.CreateEntityRequest{
		Name:         name,
		Type:         domain.EntityTypeOwner,
		InitialHours: hours,
	})
	if err != nil {
		if apperr.HasCode(err, apperr.ErrCodeOwnerExists) {
			fmt.Println("Owner already seeded, nothing to do")
			return
		}
		log.Fatalf("failed to seed owner: %v", err)
	}

	fmt.Printf("Seeded owner: id=%s name=%s hours=%.0f\n", owner.ID, owner.Name, hours)
}

func getenvDefault(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}
