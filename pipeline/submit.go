package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"regcheck/types"

	"github.com/google/uuid"
)

// SubmitDocument registers a project document and its pre-extracted units
// for compliance checking. Byte-identical resubmissions of an active
// document are rejected with ErrDuplicateSubmission.
func (r *Runner) SubmitDocument(ctx context.Context, params types.SubmitParams) (*types.SubmittedDocument, error) {
	if errs := types.Validate(&params); len(errs) > 0 {
		return nil, types.NewValidationError(errs)
	}

	var size int64
	for _, u := range params.Units {
		size += int64(len(u))
	}

	now := time.Now()
	doc := types.SubmittedDocument{
		ID:          uuid.New(),
		Filename:    params.Filename,
		SizeBytes:   size,
		ContentHash: ContentHash(params.Units),
		Status:      types.StatusPending,
		Category:    params.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.store.CreateSubmittedDocument(ctx, doc, params.Units); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ContentHash is the dedup key over a document's extracted unit texts.
func ContentHash(units []string) string {
	h := sha256.Sum256([]byte(strings.Join(units, "\x00")))
	return fmt.Sprintf("%x", h)
}
