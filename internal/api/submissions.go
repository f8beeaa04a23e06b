package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bpx-store/bpxd/internal/contracts"
	"github.com/bpx-store/bpxd/internal/domain"
)

// CreateSubmissionRequest represents the incoming request to submit an
// extension repository for review.
type CreateSubmissionRequest struct {
	Body struct {
		RepositoryURL  string `doc:"Repository hosting the extension"      example:"https://github.com/acme/widget" json:"repository_url"`
		SubmitterEmail string `doc:"Contact email of the submitter"        example:"dev@example.com"                json:"submitter_email"`
		SubmitterName  string `doc:"Display name of the submitter"         example:"Acme Dev"                       json:"submitter_name,omitempty"`
		Category       string `doc:"Proposed marketplace category"         example:"productivity"                   json:"category"`
	}
}

// ReviewRequest represents an incoming admin decision on a submission.
type ReviewRequest struct {
	ID   string `doc:"ID of the submission" path:"id"`
	Body struct {
		ReviewerEmail string `doc:"Email of the reviewing admin"                 example:"admin@example.com" json:"reviewer_email"`
		Notes         string `doc:"Notes for the submitter explaining the call"                              json:"notes,omitempty"`
	}
}

// SubmissionResponse represents the wrapped API response for a submission.
type SubmissionResponse struct {
	Body domain.Submission
}

// RegisterSubmissionRoutes sets up submission intake under /store and the
// review decision endpoints under /admin.
func RegisterSubmissionRoutes(routerAPI huma.API, reviewer contracts.SubmissionReviewer) {
	tags := []string{"Submissions"}

	huma.Register(
		routerAPI,
		huma.Operation{
			OperationID:   "createSubmission",
			Method:        http.MethodPost,
			Path:          "/store/submissions",
			Summary:       "Submit an extension repository for review",
			Tags:          tags,
			DefaultStatus: http.StatusCreated,
		},
		func(ctx context.Context, input *CreateSubmissionRequest) (*SubmissionResponse, error) {
			sub, err := reviewer.Create(
				ctx,
				input.Body.RepositoryURL,
				input.Body.SubmitterEmail,
				input.Body.SubmitterName,
				input.Body.Category,
			)
			return wrapSubmission(sub, err)
		},
	)

	adminTags := append(tags, "Admin")

	huma.Register(
		routerAPI,
		huma.Operation{
			OperationID: "approveSubmission",
			Method:      http.MethodPost,
			Path:        "/admin/submissions/{id}/approve",
			Summary:     "Approve a pending submission and publish the extension",
			Tags:        adminTags,
		},
		func(ctx context.Context, input *ReviewRequest) (*SubmissionResponse, error) {
			sub, err := reviewer.Approve(ctx, input.ID, input.Body.ReviewerEmail, input.Body.Notes)
			return wrapSubmission(sub, err)
		},
	)

	huma.Register(
		routerAPI,
		huma.Operation{
			OperationID: "rejectSubmission",
			Method:      http.MethodPost,
			Path:        "/admin/submissions/{id}/reject",
			Summary:     "Reject a pending submission",
			Tags:        adminTags,
		},
		func(ctx context.Context, input *ReviewRequest) (*SubmissionResponse, error) {
			sub, err := reviewer.Reject(ctx, input.ID, input.Body.ReviewerEmail, input.Body.Notes)
			return wrapSubmission(sub, err)
		},
	)

	huma.Register(
		routerAPI,
		huma.Operation{
			OperationID: "requestSubmissionChanges",
			Method:      http.MethodPost,
			Path:        "/admin/submissions/{id}/request-changes",
			Summary:     "Send a pending submission back to the submitter for changes",
			Tags:        adminTags,
		},
		func(ctx context.Context, input *ReviewRequest) (*SubmissionResponse, error) {
			sub, err := reviewer.RequestChanges(ctx, input.ID, input.Body.ReviewerEmail, input.Body.Notes)
			return wrapSubmission(sub, err)
		},
	)
}

func wrapSubmission(sub *domain.Submission, err error) (*SubmissionResponse, error) {
	if err != nil {
		return nil, err
	}

	resp := &SubmissionResponse{}
	resp.Body = *sub

	return resp, nil
}
