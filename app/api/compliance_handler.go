package api

import (
	"bytes"
	"errors"
	"fmt"

	"regcheck/pipeline"
	"regcheck/report"
	"regcheck/store"
	"regcheck/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ComplianceHandler struct {
	runner *pipeline.Runner
	store  store.Storer
}

func NewComplianceHandler(runner *pipeline.Runner, storer store.Storer) *ComplianceHandler {
	return &ComplianceHandler{
		runner: runner,
		store:  storer,
	}
}

// HandleSubmit registers a document for compliance checking. Units arrive
// already extracted; a byte-identical resubmission is rejected with 409.
func (h *ComplianceHandler) HandleSubmit(c *fiber.Ctx) error {
	var params types.SubmitParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	doc, err := h.runner.SubmitDocument(c.Context(), params)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (h *ComplianceHandler) HandleRunCheck(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	doc, err := h.store.GetSubmittedDocument(c.Context(), id)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrNotFound(id, "submitted document")
	}

	run, err := h.runner.RunComplianceCheck(c.Context(), id)
	if err != nil {
		var valErr types.ValidationError
		if errors.As(err, &valErr) {
			return err
		}
		// The pipeline could not execute; no run was persisted. Distinct
		// from any findings-based verdict.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": types.RunFailed,
			"error":  err.Error(),
		})
	}

	return c.JSON(run)
}

func (h *ComplianceHandler) HandleLatestRun(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	run, findings, err := h.runner.GetLatestRun(c.Context(), id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: document %s", types.ErrRunNotFound, id)
	}

	return c.JSON(fiber.Map{
		"run":      run,
		"findings": findings,
	})
}

// HandleReport renders the latest run as a downloadable PDF.
func (h *ComplianceHandler) HandleReport(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	doc, err := h.store.GetSubmittedDocument(c.Context(), id)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrNotFound(id, "submitted document")
	}

	run, findings, err := h.runner.GetLatestRun(c.Context(), id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: document %s", types.ErrRunNotFound, id)
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, *doc, *run, findings); err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="compliance_%s.pdf"`, run.ID))
	return c.Send(buf.Bytes())
}
