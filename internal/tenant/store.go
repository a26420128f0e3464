package tenant

import "context"

// Store is the source of truth for tenant → destination channel routing. A
// tenant is provisioned iff it has an entry here; entries are overwritten by
// re-provisioning and never implicitly deleted.
type Store interface {
	// Get returns the destination channel for a tenant, if provisioned.
	Get(ctx context.Context, tenantID string) (string, bool, error)

	// Set records the tenant's destination channel, persisting synchronously:
	// it returns only after the durable write completed or failed.
	Set(ctx context.Context, tenantID, channelID string) error

	// IsDestination reports whether channelID is the tenant's configured
	// destination channel.
	IsDestination(ctx context.Context, tenantID, channelID string) (bool, error)

	// ListTenantIDs returns all provisioned tenant ids in stable order. Used
	// for the startup queue bootstrap; the order is not semantically
	// significant.
	ListTenantIDs(ctx context.Context) ([]string, error)
}
