package migrate

import "context"

// UserRows streams SourceUser rows one at a time, mirroring the
// Next/Err/Close shape of pgx.Rows so that a concrete implementation can
// wrap a live database cursor without buffering the whole result set.
type UserRows interface {
	Next(ctx context.Context) bool
	User() SourceUser
	Err() error
	Close()
}

// ThreepidRows streams SourceThreepid rows.
type ThreepidRows interface {
	Next(ctx context.Context) bool
	Threepid() SourceThreepid
	Err() error
	Close()
}

// ExternalIDRows streams SourceExternalID rows.
type ExternalIDRows interface {
	Next(ctx context.Context) bool
	ExternalID() SourceExternalID
	Err() error
	Close()
}

// DeviceRows streams SourceDevice rows.
type DeviceRows interface {
	Next(ctx context.Context) bool
	Device() SourceDevice
	Err() error
	Close()
}

// AccessTokenRows streams SourceAccessToken rows (unrefreshable tokens
// only — it must exclude tokens that have a refresh-token peer).
type AccessTokenRows interface {
	Next(ctx context.Context) bool
	AccessToken() SourceAccessToken
	Err() error
	Close()
}

// RefreshableTokenPairRows streams SourceRefreshableTokenPair rows (the
// access and refresh tokens pre-joined).
type RefreshableTokenPairRows interface {
	Next(ctx context.Context) bool
	Pair() SourceRefreshableTokenPair
	Err() error
	Close()
}

// SourceReader exposes a row-count probe and per-table streaming cursors
// over a snapshot of the Synapse database (§4.4). Implementations own a
// single open transaction at snapshot isolation; streams are single-pass
// and forward-only and must not be consumed by more than one stage at a
// time.
type SourceReader interface {
	CountRows(ctx context.Context) (RowCounts, error)
	ReadUsers(ctx context.Context) (UserRows, error)
	ReadThreepids(ctx context.Context) (ThreepidRows, error)
	ReadUserExternalIDs(ctx context.Context) (ExternalIDRows, error)
	ReadDevices(ctx context.Context) (DeviceRows, error)
	ReadUnrefreshableAccessTokens(ctx context.Context) (AccessTokenRows, error)
	ReadRefreshableTokenPairs(ctx context.Context) (RefreshableTokenPairRows, error)
}
