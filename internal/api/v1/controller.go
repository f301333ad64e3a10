// Package api implements the /api/v1 operational endpoints: cooldown and
// cache inspection, the rule type catalog and rule reloads.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/truckwatch/fleet-alerts/internal/alerting"
	"github.com/truckwatch/fleet-alerts/internal/datastore/entities"
	"github.com/truckwatch/fleet-alerts/internal/logger"
)

// Engine is the part of *alerting.Engine the API exposes.
type Engine interface {
	Rules() []entities.AlertRule
	RefreshRules(ctx context.Context) error
	CacheSizes() map[string]int
	RuleTypeCatalog() []alerting.RuleTypeInfo
}

// CooldownInspector reports the remaining cooldown of a (truck, rule) pair.
// *alerting.RedisCooldownGate implements it; wrap an in-memory cache with
// LocalCooldowns.
type CooldownInspector interface {
	RemainingCooldownSeconds(ctx context.Context, truckID, ruleID string) (int64, error)
}

// LocalCooldowns adapts an in-memory cooldown cache to CooldownInspector.
type LocalCooldowns struct {
	Cache *alerting.CooldownCache
}

// RemainingCooldownSeconds implements CooldownInspector.
func (l LocalCooldowns) RemainingCooldownSeconds(_ context.Context, truckID, ruleID string) (int64, error) {
	return l.Cache.RemainingCooldownSeconds(truckID, ruleID), nil
}

// Controller serves the v1 endpoints.
type Controller struct {
	engine    Engine
	cooldowns CooldownInspector
	log       logger.Logger
}

// NewController creates a Controller.
func NewController(engine Engine, cooldowns CooldownInspector, log logger.Logger) *Controller {
	return &Controller{
		engine:    engine,
		cooldowns: cooldowns,
		log:       log.With(logger.String("component", "api")),
	}
}

// Register mounts the endpoints on g.
func (c *Controller) Register(g *echo.Group) {
	g.GET("/cooldowns/:truck/:rule", c.GetCooldown)
	g.GET("/caches", c.GetCacheSizes)
	g.GET("/rule-types", c.ListRuleTypes)
	g.GET("/rules", c.ListActiveRules)
	g.POST("/rules/refresh", c.RefreshRules)
}

// HandleError logs err and answers with message and status.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, status int) error {
	c.log.Error(message,
		logger.String("path", ctx.Path()),
		logger.Error(err))
	return ctx.JSON(status, map[string]string{"error": message})
}

// CooldownResponse is the body of GET /cooldowns/:truck/:rule.
type CooldownResponse struct {
	TruckID          string `json:"truck_id"`
	RuleID           string `json:"rule_id"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Active           bool   `json:"active"`
}

// GetCooldown reports how long alerts for a (truck, rule) pair stay suppressed.
func (c *Controller) GetCooldown(ctx echo.Context) error {
	truckID, ruleID := ctx.Param("truck"), ctx.Param("rule")
	if truckID == "" || ruleID == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Truck and rule are required"})
	}

	remaining, err := c.cooldowns.RemainingCooldownSeconds(ctx.Request().Context(), truckID, ruleID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read cooldown", http.StatusServiceUnavailable)
	}

	return ctx.JSON(http.StatusOK, CooldownResponse{
		TruckID:          truckID,
		RuleID:           ruleID,
		RemainingSeconds: remaining,
		Active:           remaining > 0,
	})
}

// GetCacheSizes returns the entry count of every in-memory cache.
func (c *Controller) GetCacheSizes(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"caches": c.engine.CacheSizes(),
	})
}

// ListRuleTypes returns the supported rule types and their defaults.
func (c *Controller) ListRuleTypes(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"rule_types": c.engine.RuleTypeCatalog(),
	})
}

// ListActiveRules returns the rules the engine is currently evaluating.
func (c *Controller) ListActiveRules(ctx echo.Context) error {
	rules := c.engine.Rules()
	return ctx.JSON(http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// RefreshRules reloads the rule set from the store without waiting for the
// next periodic refresh.
func (c *Controller) RefreshRules(ctx echo.Context) error {
	if err := c.engine.RefreshRules(ctx.Request().Context()); err != nil {
		return c.HandleError(ctx, err, "Failed to refresh alert rules", http.StatusInternalServerError)
	}

	count := len(c.engine.Rules())
	c.log.Info("alert rules refreshed", logger.Int("count", count))
	return ctx.JSON(http.StatusOK, map[string]any{"count": count})
}
