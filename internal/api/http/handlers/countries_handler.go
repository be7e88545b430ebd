package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

const (
	countriesCacheKey = "countries:all"
	countriesCacheTTL = time.Hour
)

// CountriesHandler serves the countries reference list, cached in Redis
// since the table changes at most a few times a year.
type CountriesHandler struct {
	countries repository.CountryRepository
	cache     *persistence.Redis
	logger    *zap.Logger
}

// NewCountriesHandler constructs handler.
func NewCountriesHandler(countries repository.CountryRepository, cache *persistence.Redis, logger *zap.Logger) *CountriesHandler {
	return &CountriesHandler{countries: countries, cache: cache, logger: logger}
}

// List handles GET /countries.
func (h *CountriesHandler) List(c *fiber.Ctx) error {
	ctx := c.Context()

	if h.cache != nil && h.cache.Client != nil {
		if cached, err := h.cache.Client.Get(ctx, countriesCacheKey).Bytes(); err == nil {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(cached)
		}
	}

	countries, err := h.countries.List(ctx)
	if err != nil {
		return apperrors.MapError(err)
	}

	out := make([]dto.CountryResponse, 0, len(countries))
	for _, country := range countries {
		out = append(out, dto.CountryResponse{ID: country.ID, Name: country.Name, Code: country.Code})
	}
	body, err := json.Marshal(fiber.Map{"data": out})
	if err != nil {
		return apperrors.MapError(err)
	}

	if h.cache != nil && h.cache.Client != nil {
		if err := h.cache.Client.Set(ctx, countriesCacheKey, body, countriesCacheTTL).Err(); err != nil {
			h.logger.Warn("countries cache write failed", zap.Error(err))
		}
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}
