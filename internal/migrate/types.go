package migrate

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// RowCounts is an approximate row-count probe used only to size the
// in-memory indices (§9). It is never relied upon for correctness.
type RowCounts struct {
	Users   int64
	Devices int64
}

// --- Source entities (consumed) ---

// SourceUser is a row from Synapse's users table.
type SourceUser struct {
	UserID       string // fully-qualified, e.g. "@alice:example.org"
	CreatedAt    time.Time
	Deactivated  bool
	Admin        bool
	PasswordHash *string
}

// SourceThreepid is a row from Synapse's user_threepids table.
type SourceThreepid struct {
	UserID  string
	Medium  string
	Address string
	AddedAt time.Time
}

// SourceExternalID is a row from Synapse's user_external_ids table.
type SourceExternalID struct {
	UserID       string
	AuthProvider string
	ExternalID   string
}

// SourceDevice is a row from Synapse's devices table.
type SourceDevice struct {
	UserID      string
	DeviceID    string
	DisplayName *string
	LastSeen    *time.Time
	IP          *string
	UserAgent   *string
}

// SourceAccessToken is a row from Synapse's access_tokens table that has no
// refresh-token peer.
type SourceAccessToken struct {
	UserID        string
	DeviceID      *string
	Token         string
	ValidUntilMs  *time.Time
	LastValidated *time.Time
}

// SourceRefreshableTokenPair joins a Synapse access token with its refresh
// token; device_id is required by the source schema for these rows.
type SourceRefreshableTokenPair struct {
	UserID        string
	DeviceID      string
	AccessToken   string
	RefreshToken  string
	ValidUntilMs  *time.Time
	LastValidated *time.Time
}

// --- Destination entities (produced) ---

// DestUser is a row to be inserted into MAS's users table.
type DestUser struct {
	UserID          uuid.UUID
	Username        string
	CreatedAt       time.Time
	LockedAt        *time.Time
	CanRequestAdmin bool
}

// DestUserPassword is a row to be inserted into MAS's user_passwords table.
type DestUserPassword struct {
	UserPasswordID uuid.UUID
	UserID         uuid.UUID
	HashedPassword string
	CreatedAt      time.Time
}

// DestEmailThreepid is a row to be inserted into MAS's user_emails table.
type DestEmailThreepid struct {
	UserEmailID uuid.UUID
	UserID      uuid.UUID
	Email       string
	CreatedAt   time.Time
}

// DestUnsupportedThreepid has no surrogate ID; its natural key is the
// (user, medium, address) triple.
type DestUnsupportedThreepid struct {
	UserID    uuid.UUID
	Medium    string
	Address   string
	CreatedAt time.Time
}

// DestUpstreamOAuthLink is a row to be inserted into MAS's
// upstream_oauth_links table.
type DestUpstreamOAuthLink struct {
	LinkID             uuid.UUID
	UserID             uuid.UUID
	UpstreamProviderID uuid.UUID
	Subject            string
	CreatedAt          time.Time
}

// DestCompatSession is a row to be inserted into MAS's compat_sessions
// table: a legacy (non-OIDC) session identified by device ID, or null for
// deviceless sessions.
type DestCompatSession struct {
	SessionID      uuid.UUID
	UserID         uuid.UUID
	DeviceID       *string
	HumanName      *string
	CreatedAt      time.Time
	IsSynapseAdmin bool
	LastActiveAt   *time.Time
	LastActiveIP   *netip.Addr
	UserAgent      *string
}

// DestCompatAccessToken is a row to be inserted into MAS's
// compat_access_tokens table.
type DestCompatAccessToken struct {
	TokenID     uuid.UUID
	SessionID   uuid.UUID
	AccessToken string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

// DestCompatRefreshToken is a row to be inserted into MAS's
// compat_refresh_tokens table.
type DestCompatRefreshToken struct {
	RefreshTokenID uuid.UUID
	SessionID      uuid.UUID
	AccessTokenID  uuid.UUID
	RefreshToken   string
	CreatedAt      time.Time
}
