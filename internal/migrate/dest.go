package migrate

import "context"

// DestinationWriter exposes per-table batch insert operations (§4.5). Writes
// within one call must be atomic. The writer is responsible for deferring
// foreign-key constraint checks until the whole migration completes (or for
// running with constraints disabled and re-enabling them at the end), so
// that the orchestrator's stage ordering never produces a forward reference
// the database itself would reject.
type DestinationWriter interface {
	WriteUsers(ctx context.Context, rows []DestUser) error
	WritePasswords(ctx context.Context, rows []DestUserPassword) error
	WriteEmailThreepids(ctx context.Context, rows []DestEmailThreepid) error
	WriteUnsupportedThreepids(ctx context.Context, rows []DestUnsupportedThreepid) error
	WriteUpstreamOAuthLinks(ctx context.Context, rows []DestUpstreamOAuthLink) error
	WriteCompatSessions(ctx context.Context, rows []DestCompatSession) error
	WriteCompatAccessTokens(ctx context.Context, rows []DestCompatAccessToken) error
	WriteCompatRefreshTokens(ctx context.Context, rows []DestCompatRefreshToken) error
}
