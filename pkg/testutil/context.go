package testutil

import (
	"net/http"

	id "crmhub/pkg/domain"
	"crmhub/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithUserID(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithAuth scopes the request to a staff user of a company, the state the
// bearer middleware leaves behind.
func WithAuth(req *http.Request, userID id.UserID, companyID id.CompanyID) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithCompanyID(ctx, companyID)
	return req.WithContext(ctx)
}

// WithBearer sets the Authorization header for requests that go through the
// full router.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
