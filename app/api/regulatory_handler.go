package api

import (
	"regcheck/pipeline"
	"regcheck/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type RegulatoryHandler struct {
	ingestor *pipeline.Ingestor
}

func NewRegulatoryHandler(ingestor *pipeline.Ingestor) *RegulatoryHandler {
	return &RegulatoryHandler{
		ingestor: ingestor,
	}
}

// HandleIngest indexes a regulatory document. Posting the same id again
// re-indexes it in place.
func (h *RegulatoryHandler) HandleIngest(c *fiber.Ctx) error {
	var params types.IngestParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	id := uuid.New()
	if raw := c.Query("id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return ErrInvalidID()
		}
		id = parsed
	}

	status, err := h.ingestor.IngestRegulatoryDocument(c.Context(), id, params)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"id":     id,
		"code":   pipeline.ExtractCode(params.Title),
		"status": status,
	})
}

func (h *RegulatoryHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	found, err := h.ingestor.DeleteRegulatoryDocument(c.Context(), id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound(id, "regulatory document")
	}

	return c.JSON(fiber.Map{"result": "deleted", "id": id})
}

// HandleReconcile verifies the vector index and the relational mirror agree
// for one document. Discrepancies surface as 500 with both counts.
func (h *RegulatoryHandler) HandleReconcile(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	if err := h.ingestor.Reconcile(c.Context(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "consistent", "id": id})
}
