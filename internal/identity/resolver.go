// Package identity resolves user ids to display names for audit
// records. Resolution is best-effort: any failure falls back to the raw
// id so an identity-provider outage never blocks a mutation.
package identity

import "context"

type NameResolver interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// Static is the fallback resolver: the id is the name. Used in tests
// and wherever no identity provider is wired.
type Static struct{}

func (Static) Resolve(_ context.Context, userID string) (string, error) {
	return userID, nil
}

// Display resolves a display name, swallowing errors.
func Display(ctx context.Context, resolver NameResolver, userID string) string {
	if resolver == nil {
		return userID
	}
	name, err := resolver.Resolve(ctx, userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}
