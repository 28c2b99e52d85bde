package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/marketly-hq/marketly/internal/pkg/cache"
	"github.com/marketly-hq/marketly/internal/pkg/database"
	"github.com/marketly-hq/marketly/internal/pkg/env"
	"github.com/marketly-hq/marketly/internal/pkg/jobqueue"
	"github.com/marketly-hq/marketly/internal/pkg/payments"
	"github.com/marketly-hq/marketly/internal/pkg/router"
)

func main() {
	app := NewApplication()

	manager := jobqueue.GetManager()
	manager.Start()

	// graceful shutdown: drain the queue workers before the server dies
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Shutting down...")
		manager.Stop()
		if err := app.Shutdown(); err != nil {
			log.Printf("Failed to shut down server: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// share one payment service between HTTP handlers and queue processors
	jobqueue.SetPaymentService(payments.NewServiceFromDB(database.GetDB(), payments.NewConfigFromEnv()))

	app := fiber.New(fiber.Config{
		AppName: "Marketly",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
