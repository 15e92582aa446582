package types

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

// IngestParams describes a regulatory document submitted for ingestion.
// Text arrives already extracted; the pipeline never parses PDF/DOCX.
type IngestParams struct {
	Title    string `json:"title" validate:"required"`
	Category string `json:"category"`
	Text     string `json:"text" validate:"required"`
}

// SubmitParams describes a user document registered for compliance checking.
type SubmitParams struct {
	Filename string   `json:"filename" validate:"required"`
	Category string   `json:"category"`
	Units    []string `json:"units" validate:"required,min=1"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *IngestParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *SubmitParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(s any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: http.StatusUnprocessableEntity,
		Errors: errors,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

// Config holds pipeline tuning knobs loaded from the environment.
type Config struct {
	TopK           int
	MinRelevance   float64
	ContextBudget  int // characters of regulatory context injected per unit
	Workers        int // concurrent in-flight model calls
	UnitTimeout    time.Duration
	MinChunkLength int
}

func LoadConfig() Config {
	return Config{
		TopK:           envInt("RETRIEVER_TOP_K", 8),
		MinRelevance:   envFloat("RETRIEVER_MIN_RELEVANCE", 0.3),
		ContextBudget:  envInt("ANALYZER_CONTEXT_BUDGET", 5000),
		Workers:        envInt("ANALYZER_WORKERS", 4),
		UnitTimeout:    time.Duration(envInt("ANALYZER_UNIT_TIMEOUT_SEC", 45)) * time.Second,
		MinChunkLength: envInt("CHUNKER_MIN_LENGTH", 50),
	}
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}
