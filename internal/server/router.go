package server

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hxloris/hxloris/internal/resolver"
)

// AppOptions controls how the Fiber application exposes the resolver.
type AppOptions struct {
	Logger   *logrus.Logger
	Resolver resolver.ImageResolver
	// Gatherer backs /-/metrics; nil falls back to the default registry.
	Gatherer prometheus.Gatherer
}

const contextKeyRequestID = "_hxloris_request_id"

// NewApp builds a Fiber application with request IDs, panic recovery and the
// resolver endpoints mounted under /-/.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	h := &handlers{logger: opts.Logger, resolver: opts.Resolver}
	app.Get("/-/healthz", h.healthz)
	app.Get("/-/resolve/*", h.resolve)
	app.Get("/-/resolvable/*", h.resolvable)
	app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	app.Use(func(c fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "route_not_found"})
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成 ID，并通过 X-Request-ID 回写给调用方。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

type handlers struct {
	logger   *logrus.Logger
	resolver resolver.ImageResolver
}

func (h *handlers) healthz(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handlers) resolve(c fiber.Ctx) error {
	ident := wildcardIdentifier(c)
	result, err := h.resolver.Resolve(requestContext(c), ident)
	if err != nil {
		return h.renderError(c, ident, err)
	}
	return c.JSON(result)
}

func (h *handlers) resolvable(c fiber.Ctx) error {
	if h.resolver.IsResolvable(requestContext(c), wildcardIdentifier(c)) {
		return c.SendStatus(fiber.StatusOK)
	}
	return c.SendStatus(fiber.StatusNotFound)
}

func (h *handlers) renderError(c fiber.Ctx, ident string, err error) error {
	kind, ok := resolver.KindOf(err)
	if !ok {
		kind = resolver.KindUnavailable
	}
	status := resolver.HTTPStatus(kind)

	entry := h.logger.WithFields(logrus.Fields{
		"action":     "resolve",
		"identifier": ident,
		"kind":       kind,
		"status":     status,
		"request_id": RequestID(c),
	}).WithError(err)
	if status >= fiber.StatusInternalServerError {
		entry.Error("resolve_failed")
	} else {
		entry.Warn("resolve_failed")
	}

	return c.Status(status).JSON(fiber.Map{"error": string(kind)})
}

// wildcardIdentifier 复制通配段，Fiber 会在请求结束后复用底层缓冲区，
// 而进行中的回源可能在请求返回后仍持有该字符串。
func wildcardIdentifier(c fiber.Ctx) string {
	return strings.Clone(c.Params("*"))
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
