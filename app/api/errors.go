package api

import (
	"errors"
	"fmt"
	"time"

	"regcheck/types"

	"github.com/gofiber/fiber/v2"
)

func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiError, ok := err.(Error); ok {
		return c.Status(apiError.Code).JSON(apiError)
	}

	var valError types.ValidationError
	if errors.As(err, &valError) {
		return c.Status(valError.Status).JSON(valError)
	}

	var inconsistency types.IndexInconsistencyError
	if errors.As(err, &inconsistency) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":       inconsistency.Error(),
			"doc_id":      inconsistency.DocID,
			"vector_rows": inconsistency.VectorRows,
			"mirror_rows": inconsistency.MirrorRows,
		})
	}

	switch {
	case errors.Is(err, types.ErrDuplicateSubmission):
		return c.Status(fiber.StatusConflict).JSON(NewError(fiber.StatusConflict, err.Error()))
	case errors.Is(err, types.ErrRunNotFound):
		return c.Status(fiber.StatusNotFound).JSON(NewError(fiber.StatusNotFound, err.Error()))
	case errors.Is(err, types.ErrModelUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(NewError(fiber.StatusServiceUnavailable, err.Error()))
	}

	apiError := NewError(fiber.StatusInternalServerError, err.Error())
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		apiError = NewError(fiberErr.Code, fiberErr.Message)
	}
	curTime := time.Now()
	fmt.Printf("%s Request failed with code %d and message: %s\n", &curTime, apiError.Code, apiError.Message)
	return c.Status(apiError.Code).JSON(apiError)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
