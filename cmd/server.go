package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/logx"
	"github.com/keyward-io/keyward/pkg/metrics"
)

func main() {
	logx.Info("starting keyward auth server")

	container, err := NewContainer()
	if err != nil {
		logx.WithError(err).Fatal("failed to initialize container")
	}
	defer container.Cleanup()

	app := fiber.New(fiber.Config{
		AppName:               "Keyward Auth",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New(requestid.Config{Header: "X-Request-ID"}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  container.Cfg.Server.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Tenant-ID, X-Request-ID",
		AllowMethods:  "GET, POST, PUT, DELETE, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	app.Get("/health", healthHandler(container))
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	container.IAM.Handlers.RegisterRoutes(app, container.IAM.Middleware)
	logx.Info("auth routes registered")

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	go container.IAM.CleanupService.Run(cleanupCtx)

	go func() {
		addr := fmt.Sprintf(":%d", container.Cfg.Server.Port)
		logx.Infof("listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			logx.WithError(err).Fatal("server error")
		}
	}()

	waitForShutdown(app, stopCleanup)
}

func healthHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{"status": "healthy"}
		status := fiber.StatusOK

		if err := container.DB.Ping(); err != nil {
			health["status"] = "degraded"
			health["db"] = "unhealthy"
			status = fiber.StatusServiceUnavailable
		} else {
			health["db"] = "healthy"
		}

		if container.Redis != nil {
			if err := container.Redis.Ping(c.Context()).Err(); err != nil {
				health["redis"] = "unhealthy"
			} else {
				health["redis"] = "healthy"
			}
		}
		return c.Status(status).JSON(health)
	}
}

// errorHandler converts service errors to HTTP responses. Only the registered
// public message of an errx error ever reaches the client.
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error":      fiberErr.Message,
			"request_id": c.GetRespHeader("X-Request-ID"),
		})
	}

	status, resp := errx.ToHTTP(err)
	if status >= fiber.StatusInternalServerError {
		logx.WithFields(logx.Fields{
			"path":       c.Path(),
			"method":     c.Method(),
			"ip":         c.IP(),
			"request_id": c.GetRespHeader("X-Request-ID"),
		}).WithError(err).Error("request failed")
	}
	return c.Status(status).JSON(resp)
}

func waitForShutdown(app *fiber.App, stopCleanup context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logx.Infof("received signal %v, shutting down", sig)
	stopCleanup()

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.WithError(err).Error("forced shutdown")
	}
	logx.Info("server exited")
}
