package httpapi

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/dam-monitoring/internal/dam"
	"github.com/i474232898/dam-monitoring/internal/prediction"
	"github.com/i474232898/dam-monitoring/internal/zone"
)

// Gateway is the prediction service as seen by the AI routes.
type Gateway interface {
	dam.Predictor
	Health(ctx context.Context) prediction.HealthStatus
}

// Deps are the services behind the HTTP surface.
type Deps struct {
	Dams    *dam.Service
	Zones   *zone.Service
	Gateway Gateway
	Auth    AuthConfig
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	api := app.Group("/api")
	auth := RequireAuth(deps.Auth)

	api.Get("/test", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "API is working!"})
	})

	api.Get("/dashboard", func(c *fiber.Ctx) error {
		summary, err := deps.Dams.Summary(c.UserContext())
		if err != nil {
			return damError(err)
		}
		return c.JSON(summary)
	})

	dams := api.Group("/dams", auth)

	dams.Get("/", func(c *fiber.Ctx) error {
		all, err := deps.Dams.List(c.UserContext())
		if err != nil {
			return damError(err)
		}
		return c.JSON(all)
	})

	dams.Get("/:id", func(c *fiber.Ctx) error {
		d, err := deps.Dams.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return damError(err)
		}
		return c.JSON(d)
	})

	dams.Post("/:id/readings", func(c *fiber.Ctx) error {
		var in dam.ReadingInput
		if err := decodeBody(c, &in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res, err := deps.Dams.Ingest(c.UserContext(), c.Params("id"), in)
		if err != nil {
			return damError(err)
		}
		return c.JSON(res)
	})

	dams.Put("/:id", func(c *fiber.Ctx) error {
		var in dam.ThresholdInput
		if err := decodeBody(c, &in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		d, err := deps.Dams.UpdateThresholds(c.UserContext(), c.Params("id"), in)
		if err != nil {
			return damError(err)
		}
		return c.JSON(d)
	})

	zones := api.Group("/zone", auth)

	zones.Get("/zones", func(c *fiber.Ctx) error {
		return c.JSON(deps.Zones.List(c.UserContext()))
	})

	zones.Get("/zones/:id", func(c *fiber.Ctx) error {
		z, err := deps.Zones.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return zoneError(err)
		}
		return c.JSON(z)
	})

	zones.Post("/zones/:id/readings", func(c *fiber.Ctx) error {
		var in zone.ReadingInput
		if err := decodeBody(c, &in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		z, err := deps.Zones.AddReading(c.UserContext(), c.Params("id"), in)
		if err != nil {
			return zoneError(err)
		}
		return c.JSON(z)
	})

	ai := api.Group("/ai")

	ai.Post("/predict", func(c *fiber.Ctx) error {
		pred, err := deps.Gateway.RequestPrediction(c.UserContext(), parsePredictBody(c.Body()))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(pred)
	})

	ai.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(deps.Gateway.Health(c.UserContext()))
	})
}

// decodeBody parses a JSON body; an empty body leaves v untouched.
func decodeBody(c *fiber.Ctx, v interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func damError(err error) error {
	var pe *prediction.Error
	switch {
	case errors.Is(err, dam.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Dam not found")
	case errors.Is(err, dam.ErrInvalidReading), errors.Is(err, dam.ErrInvalidThresholds):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.As(err, &pe):
		return fiber.NewError(pe.Status, pe.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func zoneError(err error) error {
	switch {
	case errors.Is(err, zone.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Zone not found")
	case errors.Is(err, zone.ErrInvalidReading):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// parsePredictBody maps a free-form request onto the gateway input. Fields of
// the wrong type are left nil so the gateway reports them as invalid input.
func parsePredictBody(body []byte) *dam.PredictionInput {
	var raw struct {
		Readings        json.RawMessage `json:"readings"`
		CurrentLevel    json.RawMessage `json:"currentLevel"`
		FlowRate        json.RawMessage `json:"flowRate"`
		Precipitation   json.RawMessage `json:"precipitation"`
		SafetyThreshold json.RawMessage `json:"safetyThreshold"`
		CriticalLevel   json.RawMessage `json:"criticalLevel"`
	}
	if len(body) == 0 || json.Unmarshal(body, &raw) != nil {
		return nil
	}

	in := &dam.PredictionInput{
		CurrentLevel:  number(raw.CurrentLevel),
		FlowRate:      number(raw.FlowRate),
		Precipitation: number(raw.Precipitation),
	}
	if v := number(raw.SafetyThreshold); v != nil {
		in.SafetyThreshold = *v
	}
	if v := number(raw.CriticalLevel); v != nil {
		in.CriticalLevel = *v
	}

	var readings []dam.Reading
	if len(raw.Readings) > 0 && raw.Readings[0] == '[' && json.Unmarshal(raw.Readings, &readings) == nil {
		if readings == nil {
			readings = []dam.Reading{}
		}
		in.Readings = readings
	}
	return in
}

func number(raw json.RawMessage) *float64 {
	var f float64
	if len(raw) == 0 || string(raw) == "null" || json.Unmarshal(raw, &f) != nil {
		return nil
	}
	return &f
}
