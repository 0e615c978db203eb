package migrate

import "context"

// fakeSourceReader is an in-memory SourceReader backed by plain slices,
// standing in for a real Synapse database in tests.
type fakeSourceReader struct {
	users        []SourceUser
	threepids    []SourceThreepid
	externalIDs  []SourceExternalID
	devices      []SourceDevice
	unrefreshed  []SourceAccessToken
	refreshables []SourceRefreshableTokenPair
}

func (f *fakeSourceReader) CountRows(ctx context.Context) (RowCounts, error) {
	return RowCounts{Users: int64(len(f.users)), Devices: int64(len(f.devices))}, nil
}

type sliceRows[T any] struct {
	items []T
	pos   int
}

func (r *sliceRows[T]) Next(ctx context.Context) bool {
	if r.pos >= len(r.items) {
		return false
	}
	r.pos++
	return true
}

func (r *sliceRows[T]) current() T    { return r.items[r.pos-1] }
func (r *sliceRows[T]) Err() error    { return nil }
func (r *sliceRows[T]) Close()        {}

type userRows struct{ sliceRows[SourceUser] }

func (r *userRows) User() SourceUser { return r.current() }

type threepidRows struct{ sliceRows[SourceThreepid] }

func (r *threepidRows) Threepid() SourceThreepid { return r.current() }

type externalIDRows struct{ sliceRows[SourceExternalID] }

func (r *externalIDRows) ExternalID() SourceExternalID { return r.current() }

type deviceRows struct{ sliceRows[SourceDevice] }

func (r *deviceRows) Device() SourceDevice { return r.current() }

type accessTokenRows struct{ sliceRows[SourceAccessToken] }

func (r *accessTokenRows) AccessToken() SourceAccessToken { return r.current() }

type refreshablePairRows struct{ sliceRows[SourceRefreshableTokenPair] }

func (r *refreshablePairRows) Pair() SourceRefreshableTokenPair { return r.current() }

func (f *fakeSourceReader) ReadUsers(ctx context.Context) (UserRows, error) {
	return &userRows{sliceRows[SourceUser]{items: f.users}}, nil
}

func (f *fakeSourceReader) ReadThreepids(ctx context.Context) (ThreepidRows, error) {
	return &threepidRows{sliceRows[SourceThreepid]{items: f.threepids}}, nil
}

func (f *fakeSourceReader) ReadUserExternalIDs(ctx context.Context) (ExternalIDRows, error) {
	return &externalIDRows{sliceRows[SourceExternalID]{items: f.externalIDs}}, nil
}

func (f *fakeSourceReader) ReadDevices(ctx context.Context) (DeviceRows, error) {
	return &deviceRows{sliceRows[SourceDevice]{items: f.devices}}, nil
}

func (f *fakeSourceReader) ReadUnrefreshableAccessTokens(ctx context.Context) (AccessTokenRows, error) {
	return &accessTokenRows{sliceRows[SourceAccessToken]{items: f.unrefreshed}}, nil
}

func (f *fakeSourceReader) ReadRefreshableTokenPairs(ctx context.Context) (RefreshableTokenPairRows, error) {
	return &refreshablePairRows{sliceRows[SourceRefreshableTokenPair]{items: f.refreshables}}, nil
}

// fakeDestinationWriter is an in-memory DestinationWriter that captures
// every row written to it.
type fakeDestinationWriter struct {
	users                 []DestUser
	passwords             []DestUserPassword
	emailThreepids        []DestEmailThreepid
	unsupportedThreepids  []DestUnsupportedThreepid
	upstreamOAuthLinks    []DestUpstreamOAuthLink
	compatSessions        []DestCompatSession
	compatAccessTokens    []DestCompatAccessToken
	compatRefreshTokens   []DestCompatRefreshToken
}

func (f *fakeDestinationWriter) WriteUsers(ctx context.Context, rows []DestUser) error {
	f.users = append(f.users, rows...)
	return nil
}

func (f *fakeDestinationWriter) WritePasswords(ctx context.Context, rows []DestUserPassword) error {
	f.passwords = append(f.passwords, rows...)
	return nil
}

func (f *fakeDestinationWriter) WriteEmailThreepids(ctx context.Context, rows []DestEmailThreepid) error {
	f.emailThreepids = append(f.emailThreepids, rows...)
	return nil
}

func (f *fakeDestinationWriter) WriteUnsupportedThreepids(ctx context.Context, rows []DestUnsupportedThreepid) error {
	f.unsupportedThreepids = append(f.unsupportedThreepids, rows...)
	return nil
}

func (f *fakeDestinationWriter) WriteUpstreamOAuthLinks(ctx context.Context, rows []DestUpstreamOAuthLink) error {
	f.upstreamOAuthLinks = append(f.upstreamOAuthLinks, rows...)
	return nil
}

func (f *fakeDestinationWriter) WriteCompatSessions(ctx context.Context, rows []DestCompatSession) error {
	f.compatSessions = append(f.compatSessions, rows...)
	return nil
}

func (f *fakeDestinationWriter) WriteCompatAccessTokens(ctx context.Context, rows []DestCompatAccessToken) error {
	f.compatAccessTokens = append(f.compatAccessTokens, rows...)
	return nil
}

func (f *fakeDestinationWriter) WriteCompatRefreshTokens(ctx context.Context, rows []DestCompatRefreshToken) error {
	f.compatRefreshTokens = append(f.compatRefreshTokens, rows...)
	return nil
}
