package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"possync/internal/appers"
	"possync/internal/application/common"
	"possync/internal/application/entity"
	use_cases "possync/internal/application/use-cases"
	"possync/pkg/validator"

	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Handler interface {
	LogCRUDOperation(c *fiber.Ctx) error
	SyncStatus(c *fiber.Ctx) error
	TriggerPush(c *fiber.Ctx) error
	TriggerPull(c *fiber.Ctx) error
	TriggerRetry(c *fiber.Ctx) error
	TriggerCleanup(c *fiber.Ctx) error
	HealthCheck(c *fiber.Ctx) error
}
type HandlerImpl struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewSyncHandler(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *HandlerImpl {
	return &HandlerImpl{
		usecase: usecase,
		logger:  logger,
	}
}

// CRUDLogRequest is the body of POST /api/crud-log.
type CRUDLogRequest struct {
	Table      string         `json:"table" validate:"required"`
	ChangeType string         `json:"changeType" validate:"required,changetype"`
	RecordID   string         `json:"recordId"`
	Data       map[string]any `json:"data"`
}

func formatValidationErrors(err error) fiber.Map {
	var details []string
	var validationErrors playgroundvalidator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("field '%s' is required", e.Field()))
			case "changetype":
				details = append(details, fmt.Sprintf("field '%s' must be CREATE, UPDATE, DELETE or DELETE_ALL_FOR_USER", e.Field()))
			default:
				details = append(details, fmt.Sprintf("field '%s' failed validation: %s", e.Field(), e.Tag()))
			}
		}
	} else {
		details = append(details, err.Error())
	}
	return fiber.Map{
		"error":   "validation failed",
		"details": details,
	}
}

// HealthCheck godoc
// @Summary     Service health
// @Description Checks the remote PostgreSQL connection and reports per-component health.
// @Produce     json
// @Success     200 {object} entity.HealthCheckResponse "All services available"
// @Failure     503 {object} entity.HealthCheckResponse "One or more services unavailable"
// @tags        Health
// @Router      /health [get]
func (h *HandlerImpl) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	dbErr := h.usecase.HealthCheck(ctx)
	dbHealthy := dbErr == nil

	var health entity.HealthCheckResponse
	health.Status = dbHealthy
	health.Message = "success"
	health.Version = common.Version
	health.Checks.Database.Status = dbHealthy
	health.Checks.Database.Type = "postgresql"
	health.Checks.Scheduler.Status = true

	if !dbHealthy {
		health.Checks.Database.Error = "Database connection failed"
		health.Message = "Some services are unavailable"
		return c.Status(fiber.StatusServiceUnavailable).JSON(health)
	}

	return c.Status(fiber.StatusOK).JSON(health)
}

// LogCRUDOperation godoc
// @Summary     Log a local change
// @Description Records a CRUD operation in the durable outbox and triggers a background push. Succeeds as soon as the change is logged locally.
// @Accept      json
// @Produce     json
// @Param       request body CRUDLogRequest true "Change to record"
// @Success     200 {object} map[string]interface{} "Change logged"
// @Failure     400 {object} map[string]interface{} "Invalid body or unknown table"
// @tags        Sync
// @Router      /api/crud-log [post]
func (h *HandlerImpl) LogCRUDOperation(c *fiber.Ctx) error {
	var req CRUDLogRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := validator.Validate.Struct(&req); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}

	if req.RecordID == "" {
		if id, ok := req.Data["id"]; ok {
			req.RecordID = fmt.Sprint(id)
		}
	}
	if req.RecordID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "recordId is required when data carries no id",
		})
	}

	id, err := h.usecase.LogCRUDOperation(c.Context(), req.Table, entity.ChangeType(req.ChangeType), req.RecordID, req.Data)
	switch {
	case errors.Is(err, appers.ErrUnknownTable):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"description": "ok", "entryId": id})
}

// SyncStatus godoc
// @Summary     Sync engine status
// @Description Reports the engine state and outbox entry counts by status.
// @Produce     json
// @Success     200 {object} entity.SyncStatus
// @tags        Sync
// @Router      /api/sync/status [get]
func (h *HandlerImpl) SyncStatus(c *fiber.Ctx) error {
	status, err := h.usecase.SyncStatus(c.Context())
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(status)
}

// TriggerPush godoc
// @Summary     Push pending changes
// @Description Drains pending outbox entries to the remote store, oldest first.
// @Produce     json
// @Success     200 {object} service.PushSummary
// @Failure     503 {object} map[string]interface{} "Remote is in offline cooldown"
// @tags        Sync
// @Router      /api/sync/push [post]
func (h *HandlerImpl) TriggerPush(c *fiber.Ctx) error {
	summary, err := h.usecase.TriggerPush(c.Context())
	switch {
	case errors.Is(err, appers.ErrRemoteOffline):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

// TriggerPull godoc
// @Summary     Pull remote changes
// @Description Applies remote changes newer than the current checkpoint to the local mirror.
// @Produce     json
// @Success     200 {object} service.PullSummary
// @tags        Sync
// @Router      /api/sync/pull [post]
func (h *HandlerImpl) TriggerPull(c *fiber.Ctx) error {
	summary, err := h.usecase.TriggerPull(c.Context())
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

// TriggerRetry godoc
// @Summary     Retry failed entries
// @Description Re-queues failed outbox entries that still have retry budget; entries out of budget are marked skipped.
// @Produce     json
// @Success     200 {object} service.RetrySummary
// @tags        Sync
// @Router      /api/sync/retry [post]
func (h *HandlerImpl) TriggerRetry(c *fiber.Ctx) error {
	summary, err := h.usecase.TriggerRetry(c.Context())
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

// TriggerCleanup godoc
// @Summary     Run retention cleanup
// @Description Removes aged-out outbox entries, sync events, remote audit rows and rotated log files.
// @Produce     json
// @Success     200 {object} service.CleanupSummary
// @tags        Sync
// @Router      /api/sync/cleanup [post]
func (h *HandlerImpl) TriggerCleanup(c *fiber.Ctx) error {
	summary, err := h.usecase.TriggerCleanup(c.Context())
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}
