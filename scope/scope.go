// Package scope carries the caller's organization through a context.
//
// The HTTP layer resolves the organization once per request and stores it
// here; services read it back when they need to stamp or filter records.
package scope

import "context"

type orgKey struct{}

// WithOrganization returns a context carrying orgID.
// An empty orgID returns ctx unchanged.
func WithOrganization(ctx context.Context, orgID string) context.Context {
	if orgID == "" {
		return ctx
	}
	return context.WithValue(ctx, orgKey{}, orgID)
}

// Organization returns the organization stored in ctx.
func Organization(ctx context.Context) (string, bool) {
	orgID, ok := ctx.Value(orgKey{}).(string)
	return orgID, ok && orgID != ""
}
