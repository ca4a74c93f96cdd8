package testutil

import (
	"net/http"

	id "securekyc/pkg/domain"
	"securekyc/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context, as the auth middleware
// would. Invalid IDs leave the request unchanged.
func WithUserID(req *http.Request, userID string) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
}

// WithAuth adds the authenticated user ID and email to the request context.
func WithAuth(req *http.Request, userID id.UserID, email string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithEmail(ctx, email)
	return req.WithContext(ctx)
}
