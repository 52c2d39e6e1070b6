// Package api exposes calculators and the product catalog over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ilramdhan/doorcalc/config"
	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/internal/domain/repository"
	"github.com/ilramdhan/doorcalc/internal/modules/calculator"
	"github.com/ilramdhan/doorcalc/internal/modules/catalog"
	"github.com/ilramdhan/doorcalc/pkg/formula"
)

// Server holds the dependencies of the HTTP handlers. Catalog may be nil,
// the catalog routes then answer 503. Ping is optional and feeds /health.
type Server struct {
	Calculators repository.CalculatorRepository
	Catalog     *catalog.DataSource
	Calculator  config.CalculatorConfig
	Logger      *slog.Logger
	Ping        func(ctx context.Context) error
	AccessLog   bool
}

type calculateRequest struct {
	Values map[string]any `json:"values"`
}

type batchRequest struct {
	Rows []map[string]any `json:"rows"`
}

type evaluateRequest struct {
	Expression string         `json:"expression"`
	Variables  map[string]any `json:"variables"`
}

// NewApp builds the fiber application with every route registered
func NewApp(s Server) *fiber.App {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "Door Calculator API",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	if s.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		status := "healthy"
		code := fiber.StatusOK
		if s.Ping != nil {
			if err := s.Ping(c.UserContext()); err != nil {
				s.Logger.Warn("health check failed", slog.Any("error", err))
				status, code = "degraded", fiber.StatusServiceUnavailable
			}
		}
		return c.Status(code).JSON(fiber.Map{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	api := app.Group("/api/v1")

	// Calculator endpoints
	api.Get("/calculators", func(c *fiber.Ctx) error {
		defs, err := s.Calculators.List(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		items := make([]fiber.Map, len(defs))
		for i, def := range defs {
			items[i] = fiber.Map{"id": def.ID, "name": def.Name, "description": def.Description}
		}
		return c.JSON(fiber.Map{"data": items, "total": len(items)})
	})

	api.Get("/calculators/:id", func(c *fiber.Ctx) error {
		def, err := s.definition(c)
		if err != nil {
			return err
		}
		return c.JSON(def)
	})

	api.Post("/calculators/:id/calculate", func(c *fiber.Ctx) error {
		def, err := s.definition(c)
		if err != nil {
			return err
		}
		var req calculateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		session, err := calculator.NewSession(def, s.Calculator.Timeout, s.engineOptions()...)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		applyErr := session.Apply(req.Values)
		snap, err := session.Recalculate(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": err.Error(), "snapshot": snap})
		}

		switch {
		case errors.Is(applyErr, calculator.ErrValidation):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(snap)
		case applyErr != nil:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": applyErr.Error(), "snapshot": snap})
		}
		return c.JSON(snap)
	})

	api.Post("/calculators/:id/batch", func(c *fiber.Ctx) error {
		def, err := s.definition(c)
		if err != nil {
			return err
		}
		var req batchRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		batch := calculator.NewBatchCalculator(def, s.Calculator.BatchWorkers, s.Calculator.Timeout, s.engineOptions()...).
			WithBatchLogger(s.Logger)
		report, err := batch.Run(c.UserContext(), req.Rows)
		if err != nil {
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": err.Error(), "report": report})
		}
		return c.JSON(report)
	})

	api.Post("/expressions/evaluate", func(c *fiber.Ctx) error {
		var req evaluateRequest
		if err := c.BodyParser(&req); err != nil || req.Expression == "" {
			return fiber.NewError(fiber.StatusBadRequest, "expression is required")
		}

		engine := calculator.NewEngine(s.engineOptions()...)
		for name, value := range req.Variables {
			if err := engine.AddVariable(entity.Variable{ID: name, Name: name, Value: value, Source: entity.SourceInput}); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}

		ctx, cancel := s.withTimeout(c.UserContext())
		defer cancel()
		result, err := engine.Evaluate(ctx, req.Expression)
		if err != nil {
			return evaluationError(c, err)
		}
		return c.JSON(fiber.Map{"result": formula.JSONSafe(result)})
	})

	// Catalog endpoints
	cat := api.Group("/catalog", func(c *fiber.Ctx) error {
		if s.Catalog == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "catalog is not configured")
		}
		return c.Next()
	})

	cat.Get("/products/:identifier", func(c *fiber.Ctx) error {
		p, err := s.Catalog.GetProduct(c.UserContext(), c.Params("identifier"))
		if err != nil {
			return catalogError(c, err)
		}
		if p == nil {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return c.JSON(p)
	})

	cat.Get("/stats", func(c *fiber.Ctx) error {
		stats, err := s.Catalog.GetProductStats(c.UserContext(), c.Query("category_id"))
		if err != nil {
			return catalogError(c, err)
		}
		return c.JSON(stats)
	})

	cat.Get("/categories", func(c *fiber.Ctx) error {
		tree, err := s.Catalog.GetCategories(c.UserContext())
		if err != nil {
			return catalogError(c, err)
		}
		return c.JSON(fiber.Map{"data": tree})
	})

	cat.Get("/categories/:id/properties", func(c *fiber.Ctx) error {
		props, err := s.Catalog.GetCategoryProperties(c.UserContext(), c.Params("id"))
		if err != nil {
			return catalogError(c, err)
		}
		return c.JSON(fiber.Map{"data": props})
	})

	cat.Post("/cache/clear", func(c *fiber.Ctx) error {
		if err := s.Catalog.ClearCache(c.UserContext()); err != nil {
			return catalogError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	return app
}

func (s *Server) definition(c *fiber.Ctx) (*entity.CalculatorDefinition, error) {
	def, err := s.Calculators.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if def == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "calculator not found")
	}
	return def, nil
}

func (s *Server) engineOptions() []calculator.Option {
	opts := []calculator.Option{
		calculator.WithLogger(s.Logger),
		calculator.WithWorkers(s.Calculator.Workers),
	}
	if s.Calculator.StrictVariables {
		opts = append(opts, calculator.WithStrictVariables())
	}
	if s.Catalog != nil {
		opts = append(opts, calculator.WithFunctions(s.Catalog.Functions()))
	}
	return opts
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Calculator.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Calculator.Timeout)
}

// errorHandler renders every handler error as {"error": message}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func evaluationError(c *fiber.Ctx, err error) error {
	var syn *formula.SyntaxError
	switch {
	case errors.As(err, &syn):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  syn.Error(),
			"line":   syn.Pos.Line,
			"column": syn.Pos.Column,
		})
	case errors.Is(err, formula.ErrUnsafeExpression):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "expression contains a forbidden call"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "evaluation timed out"})
	case errors.Is(err, catalog.ErrLookup):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
}

func catalogError(c *fiber.Ctx, err error) error {
	if errors.Is(err, catalog.ErrLookup) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
