package tally

import "context"

type ownerKey struct{}

// WithOwner returns a context carrying the authenticated owner identity.
// Every engine call reads the owner from its context and only ever sees
// that owner's records.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFrom extracts the owner identity set by WithOwner.
func OwnerFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ownerKey{}).(string)
	return v, ok && v != ""
}

func requireOwner(ctx context.Context) (string, error) {
	owner, ok := OwnerFrom(ctx)
	if !ok {
		return "", ErrUnauthorized
	}
	return owner, nil
}
