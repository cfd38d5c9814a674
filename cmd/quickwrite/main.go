package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/nanbonsmr/quickwriteai-sub001/app/repository"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/cache"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/database"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/env"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/metrics/counter"
	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/router"
)

func main() {
	app := NewApplication()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Drain buffered word usage into the database on an interval.
	go counter.StartFlusher(ctx, database.GetDB(), usageFlushInterval())

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		_ = app.ShutdownWithTimeout(15 * time.Second)
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	app := fiber.New(fiber.Config{
		AppName:   "QuickWrite AI",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}

func usageFlushInterval() time.Duration {
	raw := env.GetEnv("USAGE_FLUSH_INTERVAL", "30")
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}
