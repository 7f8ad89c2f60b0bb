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

	"github.com/lacrosselab/laxhook/internal/pkg/cache"
	"github.com/lacrosselab/laxhook/internal/pkg/database"
	"github.com/lacrosselab/laxhook/internal/pkg/env"
	"github.com/lacrosselab/laxhook/internal/pkg/membership"
	"github.com/lacrosselab/laxhook/internal/pkg/router"
	"github.com/lacrosselab/laxhook/internal/pkg/webhookqueue"
)

func main() {
	app, manager := NewApplication()
	manager.Start()

	// Drain in-flight queue work before the process exits.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		manager.Stop()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		manager.Stop()
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *webhookqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Queue wiring: store + event router + processing manager.
	store := webhookqueue.NewStore(database.GetDB())
	queueRouter := webhookqueue.NewRouter()
	membership.RegisterHandlers(queueRouter, membership.NewServiceFromDB(database.GetDB()))
	manager := webhookqueue.NewManager(store, queueRouter, webhookqueue.Options{})

	app := fiber.New(fiber.Config{
		AppName: "laxhook",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", ""),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app, manager
}
