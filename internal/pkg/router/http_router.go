package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/lacrosselab/laxhook/app/controllers"
	"github.com/lacrosselab/laxhook/internal/pkg/cache"
	"github.com/lacrosselab/laxhook/internal/pkg/database"
	"github.com/lacrosselab/laxhook/internal/pkg/env"
	"github.com/lacrosselab/laxhook/internal/pkg/webhookqueue"
)

type HttpRouter struct {
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	h.registerPublicRoutes(app)
	h.registerAdminRoutes(app)
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	// Rate-limited so a misbehaving provider retry storm cannot flood the
	// queue table. Limits are tracked in Redis to hold across restarts.
	webhooks := app.Group("/webhooks", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	wc := controllers.NewWebhookController(webhookqueue.NewStore(database.GetDB()))
	webhooks.Post("/memberpress", wc.HandleMemberpressWebhook)
}

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	adminGroup := app.Group("/admin", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", ""),
		},
	}))

	aqc := controllers.NewAdminQueueController(webhookqueue.NewStore(database.GetDB()))
	adminGroup.Get("/queue/health", aqc.HandleQueueHealth)
	adminGroup.Post("/queue/:id/requeue", aqc.HandleRequeueDeadLetter)
}

// newLimiterStorage builds a Redis-backed limiter store reusing the cache
// connection settings, on database 1 so limiter keys stay out of the cache.
func newLimiterStorage() *redisstorage.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient := cache.GetClient(); cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
