package migrate

import (
	"context"
	"io"
	"log/slog"
	mathrand "math/rand"
	"testing"
	"time"
)

func deterministicRNG(seed int64) io.Reader {
	return mathrand.New(mathrand.NewSource(seed))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runMigration(t *testing.T, src *fakeSourceReader, opts Options) *fakeDestinationWriter {
	t.Helper()
	dst := &fakeDestinationWriter{}
	if opts.RNG == nil {
		opts.RNG = deterministicRNG(1)
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.ServerName == "" {
		opts.ServerName = "example.org"
	}
	if err := Migrate(context.Background(), src, dst, opts); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return dst
}

// Scenario 1: single user, no password, no devices.
func TestMigrate_SingleUserNoPassword(t *testing.T) {
	createdTS := time.UnixMilli(1700000000000).UTC()
	src := &fakeSourceReader{
		users: []SourceUser{
			{UserID: "@alice:example.org", CreatedAt: createdTS, Deactivated: false, Admin: false},
		},
	}

	dst := runMigration(t, src, Options{})

	if len(dst.users) != 1 {
		t.Fatalf("len(users) = %d, want 1", len(dst.users))
	}
	u := dst.users[0]
	if u.Username != "alice" {
		t.Errorf("Username = %q, want alice", u.Username)
	}
	if !u.CreatedAt.Equal(createdTS) {
		t.Errorf("CreatedAt = %v, want %v", u.CreatedAt, createdTS)
	}
	if u.LockedAt != nil {
		t.Errorf("LockedAt = %v, want nil", u.LockedAt)
	}
	if u.CanRequestAdmin {
		t.Error("CanRequestAdmin = true, want false")
	}
	if len(dst.passwords) != 0 {
		t.Errorf("len(passwords) = %d, want 0", len(dst.passwords))
	}
	if len(dst.compatSessions) != 0 {
		t.Errorf("len(compatSessions) = %d, want 0", len(dst.compatSessions))
	}
	if len(dst.compatAccessTokens) != 0 {
		t.Errorf("len(compatAccessTokens) = %d, want 0", len(dst.compatAccessTokens))
	}

	// User-ID round trip.
	if got := "@" + u.Username + ":example.org"; got != "@alice:example.org" {
		t.Errorf("round trip = %q, want @alice:example.org", got)
	}

	// ID monotonicity: timestamp prefix of the ID equals floor(created_at ms).
	if !IDTimestamp(u.UserID).Equal(createdTS) {
		t.Errorf("IDTimestamp(UserID) = %v, want %v", IDTimestamp(u.UserID), createdTS)
	}
}

// Scenario 2: admin user with one device and one access token.
func TestMigrate_AdminWithDeviceAndToken(t *testing.T) {
	userCreated := time.UnixMilli(1699999999000).UTC()
	tokenValidated := time.UnixMilli(1700000001000).UTC()
	deviceLastSeen := time.UnixMilli(1700000002000).UTC()

	src := &fakeSourceReader{
		users: []SourceUser{
			{UserID: "@admin:example.org", CreatedAt: userCreated, Admin: true},
		},
		unrefreshed: []SourceAccessToken{
			{
				UserID:        "@admin:example.org",
				DeviceID:      strPtr("DEV1"),
				Token:         "tok1",
				LastValidated: &tokenValidated,
			},
		},
		devices: []SourceDevice{
			{UserID: "@admin:example.org", DeviceID: "DEV1", LastSeen: &deviceLastSeen},
		},
	}

	dst := runMigration(t, src, Options{})

	if len(dst.compatSessions) != 1 {
		t.Fatalf("len(compatSessions) = %d, want 1", len(dst.compatSessions))
	}
	sess := dst.compatSessions[0]
	if !sess.IsSynapseAdmin {
		t.Error("IsSynapseAdmin = false, want true")
	}
	if sess.DeviceID == nil || *sess.DeviceID != "DEV1" {
		t.Errorf("DeviceID = %v, want DEV1", sess.DeviceID)
	}
	if !sess.CreatedAt.Equal(tokenValidated) {
		t.Errorf("session CreatedAt = %v, want %v (dated by the token, not the device)", sess.CreatedAt, tokenValidated)
	}
	if sess.LastActiveAt == nil || !sess.LastActiveAt.Equal(deviceLastSeen) {
		t.Errorf("LastActiveAt = %v, want %v", sess.LastActiveAt, deviceLastSeen)
	}

	if len(dst.compatAccessTokens) != 1 {
		t.Fatalf("len(compatAccessTokens) = %d, want 1", len(dst.compatAccessTokens))
	}
	if dst.compatAccessTokens[0].SessionID != sess.SessionID {
		t.Error("access token session_id does not match the emitted session")
	}
}

// Scenario 3: deviceless access token.
func TestMigrate_DevicelessAccessToken(t *testing.T) {
	src := &fakeSourceReader{
		users: []SourceUser{
			{UserID: "@bob:example.org", CreatedAt: time.UnixMilli(1700000000000).UTC()},
		},
		unrefreshed: []SourceAccessToken{
			{UserID: "@bob:example.org", DeviceID: nil, Token: "tok-deviceless"},
		},
	}

	fixedNow := time.UnixMilli(1700000005000).UTC()
	dst := runMigration(t, src, Options{Clock: FixedClock{At: fixedNow}})

	if len(dst.compatSessions) != 1 {
		t.Fatalf("len(compatSessions) = %d, want 1", len(dst.compatSessions))
	}
	sess := dst.compatSessions[0]
	if sess.DeviceID != nil {
		t.Errorf("DeviceID = %v, want nil", sess.DeviceID)
	}
	if !sess.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", sess.CreatedAt, fixedNow)
	}
}

// Scenario 4: refreshable pair then device row — session shared, dated by
// the pair's last_validated.
func TestMigrate_RefreshablePairThenDevice(t *testing.T) {
	lastValidated := time.UnixMilli(1700000003000).UTC()
	src := &fakeSourceReader{
		users: []SourceUser{
			{UserID: "@carol:example.org", CreatedAt: time.UnixMilli(1699999990000).UTC()},
		},
		refreshables: []SourceRefreshableTokenPair{
			{
				UserID:        "@carol:example.org",
				DeviceID:      "DEV2",
				AccessToken:   "acc2",
				RefreshToken:  "ref2",
				LastValidated: &lastValidated,
			},
		},
		devices: []SourceDevice{
			{UserID: "@carol:example.org", DeviceID: "DEV2"},
		},
	}

	dst := runMigration(t, src, Options{})

	if len(dst.compatSessions) != 1 {
		t.Fatalf("len(compatSessions) = %d, want 1", len(dst.compatSessions))
	}
	sess := dst.compatSessions[0]
	if !IDTimestamp(sess.SessionID).Equal(lastValidated) {
		t.Errorf("session id timestamp = %v, want %v", IDTimestamp(sess.SessionID), lastValidated)
	}

	if len(dst.compatAccessTokens) != 1 || len(dst.compatRefreshTokens) != 1 {
		t.Fatalf("got %d access tokens, %d refresh tokens, want 1 each", len(dst.compatAccessTokens), len(dst.compatRefreshTokens))
	}
	if dst.compatRefreshTokens[0].AccessTokenID != dst.compatAccessTokens[0].TokenID {
		t.Error("refresh token does not reference the paired access token")
	}
	if dst.compatRefreshTokens[0].SessionID != sess.SessionID {
		t.Error("refresh token does not reference the shared session")
	}
}

// Scenario 5: email threepid.
func TestMigrate_EmailThreepid(t *testing.T) {
	addedAt := time.UnixMilli(1700000004000).UTC()
	src := &fakeSourceReader{
		users: []SourceUser{
			{UserID: "@alice:example.org", CreatedAt: time.UnixMilli(1700000000000).UTC()},
		},
		threepids: []SourceThreepid{
			{UserID: "@alice:example.org", Medium: "email", Address: "alice@x", AddedAt: addedAt},
		},
	}

	dst := runMigration(t, src, Options{})

	if len(dst.emailThreepids) != 1 {
		t.Fatalf("len(emailThreepids) = %d, want 1", len(dst.emailThreepids))
	}
	et := dst.emailThreepids[0]
	if et.UserID != dst.users[0].UserID {
		t.Error("email threepid user_id does not match alice")
	}
	if !et.CreatedAt.Equal(addedAt) {
		t.Errorf("CreatedAt = %v, want %v", et.CreatedAt, addedAt)
	}
	if len(dst.unsupportedThreepids) != 0 {
		t.Errorf("len(unsupportedThreepids) = %d, want 0", len(dst.unsupportedThreepids))
	}
}

func TestMigrate_UnsupportedThreepidPreservesMediumVerbatim(t *testing.T) {
	src := &fakeSourceReader{
		users: []SourceUser{
			{UserID: "@alice:example.org", CreatedAt: time.UnixMilli(1700000000000).UTC()},
		},
		threepids: []SourceThreepid{
			{UserID: "@alice:example.org", Medium: "msisdn", Address: "15551234567", AddedAt: time.UnixMilli(1700000004000).UTC()},
		},
	}

	dst := runMigration(t, src, Options{})

	if len(dst.unsupportedThreepids) != 1 {
		t.Fatalf("len(unsupportedThreepids) = %d, want 1", len(dst.unsupportedThreepids))
	}
	if dst.unsupportedThreepids[0].Medium != "msisdn" {
		t.Errorf("Medium = %q, want msisdn", dst.unsupportedThreepids[0].Medium)
	}
}

// Scenario 6: external ID with unmapped provider.
func TestMigrate_MissingAuthProviderMapping(t *testing.T) {
	src := &fakeSourceReader{
		users: []SourceUser{
			{UserID: "@alice:example.org", CreatedAt: time.UnixMilli(1700000000000).UTC()},
		},
		externalIDs: []SourceExternalID{
			{UserID: "@alice:example.org", AuthProvider: "oidc-provider", ExternalID: "sub-123"},
		},
	}

	dst := &fakeDestinationWriter{}
	err := Migrate(context.Background(), src, dst, Options{
		ServerName: "example.org",
		RNG:        deterministicRNG(1),
		Logger:     discardLogger(),
	})
	if err == nil {
		t.Fatal("Migrate() error = nil, want MissingAuthProviderMappingError")
	}
	var mapErr *MissingAuthProviderMappingError
	if !asMissingAuthProviderMapping(err, &mapErr) {
		t.Fatalf("error = %v, want *MissingAuthProviderMappingError", err)
	}
	if mapErr.SynapseID != "oidc-provider" {
		t.Errorf("SynapseID = %q, want oidc-provider", mapErr.SynapseID)
	}
	if len(dst.upstreamOAuthLinks) != 0 {
		t.Errorf("len(upstreamOAuthLinks) = %d, want 0 (migration should abort before writing)", len(dst.upstreamOAuthLinks))
	}
}

func asMissingAuthProviderMapping(err error, target **MissingAuthProviderMappingError) bool {
	if e, ok := err.(*MissingAuthProviderMappingError); ok {
		*target = e
		return true
	}
	return false
}

// Unparseable IP: migration succeeds, session gets a null IP.
func TestMigrate_UnparseableDeviceIP(t *testing.T) {
	src := &fakeSourceReader{
		users: []SourceUser{
			{UserID: "@alice:example.org", CreatedAt: time.UnixMilli(1700000000000).UTC()},
		},
		devices: []SourceDevice{
			{UserID: "@alice:example.org", DeviceID: "DEV1", IP: strPtr("not-an-ip")},
		},
	}

	dst := runMigration(t, src, Options{})

	if len(dst.compatSessions) != 1 {
		t.Fatalf("len(compatSessions) = %d, want 1", len(dst.compatSessions))
	}
	if dst.compatSessions[0].LastActiveIP != nil {
		t.Errorf("LastActiveIP = %v, want nil", dst.compatSessions[0].LastActiveIP)
	}
}

func TestMigrate_DeactivatedUserLocksAtCreation(t *testing.T) {
	createdAt := time.UnixMilli(1700000000000).UTC()
	src := &fakeSourceReader{
		users: []SourceUser{
			{UserID: "@alice:example.org", CreatedAt: createdAt, Deactivated: true},
		},
	}

	dst := runMigration(t, src, Options{})

	if dst.users[0].LockedAt == nil || !dst.users[0].LockedAt.Equal(createdAt) {
		t.Errorf("LockedAt = %v, want %v", dst.users[0].LockedAt, createdAt)
	}
}

func TestMigrate_PasswordCoupling(t *testing.T) {
	hash := "$argon2id$..."
	src := &fakeSourceReader{
		users: []SourceUser{
			{UserID: "@alice:example.org", CreatedAt: time.UnixMilli(1700000000000).UTC(), PasswordHash: &hash},
			{UserID: "@bob:example.org", CreatedAt: time.UnixMilli(1700000000000).UTC()},
		},
	}

	dst := runMigration(t, src, Options{})

	if len(dst.passwords) != 1 {
		t.Fatalf("len(passwords) = %d, want 1", len(dst.passwords))
	}
	if dst.passwords[0].UserID != dst.users[0].UserID {
		t.Error("password user_id does not match alice")
	}
}

func TestMigrate_TwoTokensSameDeviceShareSession(t *testing.T) {
	firstValidated := time.UnixMilli(1700000010000).UTC()
	secondValidated := time.UnixMilli(1700000001000).UTC() // earlier, but seen second
	src := &fakeSourceReader{
		users: []SourceUser{
			{UserID: "@alice:example.org", CreatedAt: time.UnixMilli(1699999999000).UTC()},
		},
		unrefreshed: []SourceAccessToken{
			{UserID: "@alice:example.org", DeviceID: strPtr("DEV1"), Token: "t1", LastValidated: &firstValidated},
			{UserID: "@alice:example.org", DeviceID: strPtr("DEV1"), Token: "t2", LastValidated: &secondValidated},
		},
		devices: []SourceDevice{
			{UserID: "@alice:example.org", DeviceID: "DEV1"},
		},
	}

	dst := runMigration(t, src, Options{})

	if len(dst.compatSessions) != 1 {
		t.Fatalf("len(compatSessions) = %d, want 1 (tokens for the same device share one session)", len(dst.compatSessions))
	}
	if !IDTimestamp(dst.compatSessions[0].SessionID).Equal(firstValidated) {
		t.Errorf("session dated %v, want %v (dated by the first token seen, not the earliest)", IDTimestamp(dst.compatSessions[0].SessionID), firstValidated)
	}
	if len(dst.compatAccessTokens) != 2 {
		t.Fatalf("len(compatAccessTokens) = %d, want 2", len(dst.compatAccessTokens))
	}
	for _, tok := range dst.compatAccessTokens {
		if tok.SessionID != dst.compatSessions[0].SessionID {
			t.Error("both tokens must reference the shared session")
		}
	}
}

func TestMigrate_InvalidUserID(t *testing.T) {
	src := &fakeSourceReader{
		users: []SourceUser{
			{UserID: "not-a-user-id", CreatedAt: time.UnixMilli(1700000000000).UTC()},
		},
	}

	dst := &fakeDestinationWriter{}
	err := Migrate(context.Background(), src, dst, Options{
		ServerName: "example.org",
		RNG:        deterministicRNG(1),
		Logger:     discardLogger(),
	})
	if err == nil {
		t.Fatal("Migrate() error = nil, want InvalidUserIDError")
	}
	if _, ok := err.(*InvalidUserIDError); !ok {
		t.Errorf("error = %v (%T), want *InvalidUserIDError", err, err)
	}
}

func TestMigrate_MissingUserFromDependentTable(t *testing.T) {
	src := &fakeSourceReader{
		threepids: []SourceThreepid{
			{UserID: "@ghost:example.org", Medium: "email", Address: "ghost@x", AddedAt: time.UnixMilli(1700000000000).UTC()},
		},
	}

	dst := &fakeDestinationWriter{}
	err := Migrate(context.Background(), src, dst, Options{
		ServerName: "example.org",
		RNG:        deterministicRNG(1),
		Logger:     discardLogger(),
	})
	if err == nil {
		t.Fatal("Migrate() error = nil, want MissingUserFromDependentTableError")
	}
	mErr, ok := err.(*MissingUserFromDependentTableError)
	if !ok {
		t.Fatalf("error = %v (%T), want *MissingUserFromDependentTableError", err, err)
	}
	if mErr.Table != "user_threepids" {
		t.Errorf("Table = %q, want user_threepids", mErr.Table)
	}
}

func strPtr(s string) *string { return &s }
