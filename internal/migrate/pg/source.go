package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wisbric/syn2mas/internal/migrate"
)

// Reader is a migrate.SourceReader backed by an open Synapse database
// transaction. Callers are responsible for beginning the transaction at
// (at least) repeatable-read isolation before constructing a Reader, and
// for rolling it back once the migration returns.
type Reader struct {
	tx dbtx
}

// NewReader wraps tx, typically a pgx.Tx obtained with
// pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, as a migrate.SourceReader.
func NewReader(tx dbtx) *Reader {
	return &Reader{tx: tx}
}

// CountRows returns approximate row counts from Postgres's planner
// statistics rather than exact counts, since an exact count over large
// Synapse tables would itself require a full scan (§4.4: "not relied upon
// for correctness").
func (r *Reader) CountRows(ctx context.Context) (migrate.RowCounts, error) {
	var counts migrate.RowCounts
	err := r.tx.QueryRow(ctx, `
		SELECT
			(SELECT reltuples::bigint FROM pg_class WHERE relname = 'users'),
			(SELECT reltuples::bigint FROM pg_class WHERE relname = 'devices')
	`).Scan(&counts.Users, &counts.Devices)
	if err != nil {
		return migrate.RowCounts{}, fmt.Errorf("estimating row counts: %w", err)
	}
	return counts, nil
}

type rowsCursor[T any] struct {
	rows  pgx.Rows
	scan  func(pgx.Rows) (T, error)
	cur   T
	err   error
	label string
}

func (c *rowsCursor[T]) Next(ctx context.Context) bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	c.cur, c.err = c.scan(c.rows)
	return c.err == nil
}

func (c *rowsCursor[T]) Err() error {
	if c.err != nil {
		return fmt.Errorf("scanning %s row: %w", c.label, c.err)
	}
	if err := c.rows.Err(); err != nil {
		return fmt.Errorf("iterating %s rows: %w", c.label, err)
	}
	return nil
}

func (c *rowsCursor[T]) Close() { c.rows.Close() }

type userRows struct{ rowsCursor[migrate.SourceUser] }

func (r *userRows) User() migrate.SourceUser { return r.cur }

func (r *Reader) ReadUsers(ctx context.Context) (migrate.UserRows, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT name, creation_ts, deactivated, admin, password_hash
		FROM users
		ORDER BY creation_ts
	`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	return &userRows{rowsCursor[migrate.SourceUser]{
		rows:  rows,
		label: "user",
		scan: func(rows pgx.Rows) (migrate.SourceUser, error) {
			var u migrate.SourceUser
			var creationTs int64
			err := rows.Scan(&u.UserID, &creationTs, &u.Deactivated, &u.Admin, &u.PasswordHash)
			u.CreatedAt = msToTime(creationTs)
			return u, err
		},
	}}, nil
}

type threepidRows struct{ rowsCursor[migrate.SourceThreepid] }

func (r *threepidRows) Threepid() migrate.SourceThreepid { return r.cur }

func (r *Reader) ReadThreepids(ctx context.Context) (migrate.ThreepidRows, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT user_id, medium, address, added_at
		FROM user_threepids
		ORDER BY added_at
	`)
	if err != nil {
		return nil, fmt.Errorf("querying user_threepids: %w", err)
	}
	return &threepidRows{rowsCursor[migrate.SourceThreepid]{
		rows:  rows,
		label: "threepid",
		scan: func(rows pgx.Rows) (migrate.SourceThreepid, error) {
			var t migrate.SourceThreepid
			var addedAt int64
			err := rows.Scan(&t.UserID, &t.Medium, &t.Address, &addedAt)
			t.AddedAt = msToTime(addedAt)
			return t, err
		},
	}}, nil
}

type externalIDRows struct{ rowsCursor[migrate.SourceExternalID] }

func (r *externalIDRows) ExternalID() migrate.SourceExternalID { return r.cur }

func (r *Reader) ReadUserExternalIDs(ctx context.Context) (migrate.ExternalIDRows, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT user_id, auth_provider, external_id
		FROM user_external_ids
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying user_external_ids: %w", err)
	}
	return &externalIDRows{rowsCursor[migrate.SourceExternalID]{
		rows:  rows,
		label: "external ID",
		scan: func(rows pgx.Rows) (migrate.SourceExternalID, error) {
			var e migrate.SourceExternalID
			err := rows.Scan(&e.UserID, &e.AuthProvider, &e.ExternalID)
			return e, err
		},
	}}, nil
}

type deviceRows struct{ rowsCursor[migrate.SourceDevice] }

func (r *deviceRows) Device() migrate.SourceDevice { return r.cur }

func (r *Reader) ReadDevices(ctx context.Context) (migrate.DeviceRows, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT user_id, device_id, display_name, last_seen, ip, user_agent
		FROM devices
		ORDER BY user_id, device_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	return &deviceRows{rowsCursor[migrate.SourceDevice]{
		rows:  rows,
		label: "device",
		scan: func(rows pgx.Rows) (migrate.SourceDevice, error) {
			var d migrate.SourceDevice
			var lastSeen *int64
			err := rows.Scan(&d.UserID, &d.DeviceID, &d.DisplayName, &lastSeen, &d.IP, &d.UserAgent)
			if lastSeen != nil {
				t := msToTime(*lastSeen)
				d.LastSeen = &t
			}
			return d, err
		},
	}}, nil
}

type accessTokenRows struct{ rowsCursor[migrate.SourceAccessToken] }

func (r *accessTokenRows) AccessToken() migrate.SourceAccessToken { return r.cur }

// ReadUnrefreshableAccessTokens excludes any access token that has a row in
// refresh_tokens pointing at it (those are surfaced by
// ReadRefreshableTokenPairs instead, §4.4).
func (r *Reader) ReadUnrefreshableAccessTokens(ctx context.Context) (migrate.AccessTokenRows, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT at.user_id, at.device_id, at.token, at.valid_until_ms, at.last_validated
		FROM access_tokens at
		WHERE NOT EXISTS (
			SELECT 1 FROM refresh_tokens rt WHERE rt.token_id = at.id
		)
		ORDER BY at.id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying unrefreshable access_tokens: %w", err)
	}
	return &accessTokenRows{rowsCursor[migrate.SourceAccessToken]{
		rows:  rows,
		label: "access token",
		scan: func(rows pgx.Rows) (migrate.SourceAccessToken, error) {
			var a migrate.SourceAccessToken
			var validUntilMs, lastValidated *int64
			err := rows.Scan(&a.UserID, &a.DeviceID, &a.Token, &validUntilMs, &lastValidated)
			if validUntilMs != nil {
				t := msToTime(*validUntilMs)
				a.ValidUntilMs = &t
			}
			if lastValidated != nil {
				t := msToTime(*lastValidated)
				a.LastValidated = &t
			}
			return a, err
		},
	}}, nil
}

type refreshablePairRows struct{ rowsCursor[migrate.SourceRefreshableTokenPair] }

func (r *refreshablePairRows) Pair() migrate.SourceRefreshableTokenPair { return r.cur }

// ReadRefreshableTokenPairs pre-joins each refresh token to its access
// token (§4.4: "the access and refresh tokens are pre-joined").
func (r *Reader) ReadRefreshableTokenPairs(ctx context.Context) (migrate.RefreshableTokenPairRows, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT at.user_id, at.device_id, at.token, rt.token, at.valid_until_ms, at.last_validated
		FROM refresh_tokens rt
		JOIN access_tokens at ON at.id = rt.token_id
		WHERE at.device_id IS NOT NULL
		ORDER BY rt.id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying refreshable token pairs: %w", err)
	}
	return &refreshablePairRows{rowsCursor[migrate.SourceRefreshableTokenPair]{
		rows:  rows,
		label: "refreshable token pair",
		scan: func(rows pgx.Rows) (migrate.SourceRefreshableTokenPair, error) {
			var p migrate.SourceRefreshableTokenPair
			var validUntilMs, lastValidated *int64
			err := rows.Scan(&p.UserID, &p.DeviceID, &p.AccessToken, &p.RefreshToken, &validUntilMs, &lastValidated)
			if validUntilMs != nil {
				t := msToTime(*validUntilMs)
				p.ValidUntilMs = &t
			}
			if lastValidated != nil {
				t := msToTime(*lastValidated)
				p.LastValidated = &t
			}
			return p, err
		},
	}}, nil
}
