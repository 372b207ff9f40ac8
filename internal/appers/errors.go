package appers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

var (
	// ErrNoValidColumns: schema-drift filtering left nothing to write
	ErrNoValidColumns = errors.New("no valid columns found in change data")
	ErrParentNotFound = errors.New("parent record not found for dependency resolution")
	ErrParentDeleted  = errors.New("parent record was deleted after the child change was queued")
	ErrUnknownTable   = errors.New("table is not registered for synchronization")
	ErrRemoteOffline  = errors.New("remote endpoint is in offline cooldown")
)

type ErrorResp struct {
	StatusCode int    `json:"statusCode,omitempty"`
	StatusDesc string `json:"statusDesc,omitempty"`
}

func (e ErrorResp) Error() string {
	return e.StatusDesc
}

var (
	ErrBadRequest = ErrorResp{
		http.StatusBadRequest,
		"invalid request body",
	}
	ErrSyncUnavailable = ErrorResp{
		http.StatusServiceUnavailable,
		"sync engine is not running",
	}
)

func SanitizeError(c *fiber.Ctx, err error) error {
	var errResp ErrorResp

	if ok := errors.As(err, &errResp); ok {
		return c.Status(errResp.StatusCode).JSON(fiber.Map{
			"message": errResp.StatusDesc,
		})
	} else {
		return NewErr(c, http.StatusInternalServerError, err)
	}
}

func NewErr(ctx *fiber.Ctx, status int, err error) error {
	return ctx.Status(status).JSON(fiber.Map{
		"message": err.Error(),
	})
}
