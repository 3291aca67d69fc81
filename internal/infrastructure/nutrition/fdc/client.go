// Package fdc queries USDA FoodData Central for exact nutrient profiles.
package fdc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FoodData Central nutrient numbers
const (
	nutrientEnergy  = 1008
	nutrientProtein = 1003
	nutrientFat     = 1004
	nutrientCarbs   = 1005
	nutrientFiber   = 1079
	// Atwater general factor energy, reported for Foundation foods
	nutrientEnergyAtwater = 2047
)

// Config configures the client
type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

// Client is a rate-limited FoodData Central search client
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a new FoodData Central client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.nal.usda.gov/fdc/v1"
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger.Named("fdc"),
	}
}

var _ outbound.NutrientSource = (*Client)(nil)

type searchResponse struct {
	TotalHits int    `json:"totalHits"`
	Foods     []food `json:"foods"`
}

type food struct {
	FDCID         int            `json:"fdcId"`
	Description   string         `json:"description"`
	DataType      string         `json:"dataType"`
	FoodNutrients []foodNutrient `json:"foodNutrients"`
}

type foodNutrient struct {
	NutrientID     int     `json:"nutrientId"`
	NutrientNumber string  `json:"nutrientNumber"`
	UnitName       string  `json:"unitName"`
	Value          float64 `json:"value"`
}

// Name identifies the source
func (c *Client) Name() string {
	return "fdc"
}

// Lookup searches for label and returns the per-100 g profile of the best
// hit. Returns outbound.ErrNotFound when nothing usable matches and
// outbound.ErrRateLimited when throttled locally or upstream.
func (c *Client) Lookup(ctx context.Context, label string) (nutrition.Profile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nutrition.Profile{}, ctx.Err()
		}
		return nutrition.Profile{}, fmt.Errorf("%w: %v", outbound.ErrRateLimited, err)
	}

	q := url.Values{}
	q.Set("query", label)
	q.Set("pageSize", "3")
	q.Set("dataType", "Foundation,SR Legacy")
	q.Set("api_key", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/foods/search?"+q.Encode(), nil)
	if err != nil {
		return nutrition.Profile{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nutrition.Profile{}, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nutrition.Profile{}, outbound.ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nutrition.Profile{}, fmt.Errorf("search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nutrition.Profile{}, fmt.Errorf("failed to decode search response: %w", err)
	}

	for _, f := range result.Foods {
		p, ok := toProfile(f)
		if !ok {
			continue
		}
		c.logger.Debug("Nutrient profile resolved",
			zap.String("label", label),
			zap.Int("fdc_id", f.FDCID),
			zap.String("description", f.Description),
		)
		return p, nil
	}
	return nutrition.Profile{}, outbound.ErrNotFound
}

// toProfile extracts per-100 g values. Foods without an energy value are
// unusable.
func toProfile(f food) (nutrition.Profile, bool) {
	var p nutrition.Profile
	var energy, atwater float64
	for _, n := range f.FoodNutrients {
		switch n.NutrientID {
		case nutrientEnergy:
			if strings.EqualFold(n.UnitName, "kcal") {
				energy = n.Value
			}
		case nutrientEnergyAtwater:
			atwater = n.Value
		case nutrientProtein:
			p.ProteinG = n.Value
		case nutrientFat:
			p.FatG = n.Value
		case nutrientCarbs:
			p.CarbsG = n.Value
		case nutrientFiber:
			p.FiberG = n.Value
		}
	}
	p.Calories = energy
	if p.Calories <= 0 {
		p.Calories = atwater
	}
	if p.Calories <= 0 {
		return nutrition.Profile{}, false
	}
	return p, p.Validate() == nil
}

// Ping reports whether the API answers with the configured key
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	q.Set("pageSize", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/foods/list?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return errors.New("fdc ping returned " + resp.Status)
	}
	return nil
}
