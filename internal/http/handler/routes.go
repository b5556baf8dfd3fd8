package handler

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"apflow/internal/model"
	"apflow/internal/service"
	"apflow/internal/workflow"
)

// actionBody is the request payload for explicit workflow actions.
type actionBody struct {
	Action   string `json:"action"`
	Actor    string `json:"actor"`
	Role     string `json:"role"`
	Comments string `json:"comments"`
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin: parse, delegate to the service, translate errors.
func RegisterRoutes(app *fiber.App, db *sql.DB, invSvc service.InvoiceService) {
	// Health endpoint: checks DB connectivity only
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	})

	// Simple liveness probe
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	// List invoices with optional status filter plus limit & offset
	app.Get("/invoices", func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}
		status := model.Status(c.Query("status", ""))
		if status != "" && !status.IsValid() {
			return writeError(c, fiber.StatusBadRequest, "INVALID_STATUS", "unknown status filter")
		}

		res, err := invSvc.List(c.UserContext(), status, limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	})

	// Ingest invoice (multipart/form-data: file + po_number, optional approver).
	// Returns 202: processing is asynchronous.
	app.Post("/invoices", func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}
		poNumber := c.FormValue("po_number")
		approver := c.FormValue("approver")

		inv, err := invSvc.Ingest(c.UserContext(), f, fh.Filename, ct, fh.Size, poNumber, approver)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.Status(fiber.StatusAccepted).JSON(inv)
	})

	// Get invoice by ID
	app.Get("/invoices/:id", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		inv, err := invSvc.Get(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "invoice not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(inv)
	})

	// Apply a workflow action (APPROVE / REJECT / RESET)
	app.Post("/invoices/:id/actions", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var body actionBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "cannot parse request body")
		}

		inv, err := invSvc.Act(c.UserContext(), id, service.ActionRequest{
			Action:   model.Action(body.Action),
			Actor:    body.Actor,
			Role:     model.Role(body.Role),
			Comments: body.Comments,
		})
		if err != nil {
			return writeActionError(c, err)
		}
		return c.JSON(inv)
	})

	// Reset and rerun the processing pipeline
	app.Post("/invoices/:id/reprocess", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var body actionBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "cannot parse request body")
		}

		inv, err := invSvc.Reprocess(c.UserContext(), id, body.Actor, model.Role(body.Role))
		if err != nil {
			return writeActionError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(inv)
	})
}

// writeActionError maps workflow/service failures onto the error envelope.
func writeActionError(c *fiber.Ctx, err error) error {
	var authErr *workflow.AuthorizationError
	switch {
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "invoice not found")
	case errors.Is(err, service.ErrActionRequired):
		return writeError(c, fiber.StatusBadRequest, "ACTION_REQUIRED", "action is required")
	case errors.As(err, &authErr):
		return writeError(c, fiber.StatusForbidden, "AUTHORIZATION_DENIED", authErr.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		return writeError(c, fiber.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, service.ErrInvoiceLocked):
		return writeError(c, fiber.StatusConflict, "INVOICE_LOCKED", err.Error())
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
