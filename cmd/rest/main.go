package main

import (
	"context"
	"log"

	"deep-research-be/internal/bootstrap"
	"deep-research-be/internal/config"
	"deep-research-be/internal/model"
	"deep-research-be/internal/server"
	"deep-research-be/internal/tracer"
	"deep-research-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database. The service runs without one; finished sessions
	// are then kept in memory only.
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDB(cfg.Database.Connection)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		if err := db.AutoMigrate(&model.ResearchSessionArchive{}); err != nil {
			log.Panicf("Unable to migrate archive schema: %v", err)
		}
		gormDB = db
	} else {
		log.Println("[WARN] DB_CONNECTION_STRING not set, session archiving disabled")
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)
	defer func() {
		if container.NatsPublisher != nil {
			container.NatsPublisher.Close()
		}
		if container.NatsSubscriber != nil {
			container.NatsSubscriber.Close()
		}
	}()

	// 4. Initialize Server
	srv := server.New(cfg, container)

	// 5. Run Server
	log.Fatal(srv.Run())
}
