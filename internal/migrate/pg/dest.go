package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/wisbric/syn2mas/internal/migrate"
)

// Writer is a migrate.DestinationWriter backed by an open MAS database
// transaction. The caller defers or disables foreign-key checks for the
// lifetime of the transaction (§4.5) and commits only once Migrate
// returns success.
type Writer struct {
	tx dbtx
}

// NewWriter wraps tx as a migrate.DestinationWriter.
func NewWriter(tx dbtx) *Writer {
	return &Writer{tx: tx}
}

// buildInsert renders a single multi-row INSERT statement with one VALUES
// group per row, so that each WriteXxx call issues exactly one round trip
// regardless of batch size (§4.3).
func buildInsert(table string, columns []string, rowCount int, args [][]any) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	flat := make([]any, 0, rowCount*len(columns))
	n := 1
	for i, row := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", n)
			n++
		}
		sb.WriteByte(')')
		flat = append(flat, row...)
	}
	return sb.String(), flat
}

func (w *Writer) WriteUsers(ctx context.Context, rows []migrate.DestUser) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([][]any, len(rows))
	for i, u := range rows {
		args[i] = []any{u.UserID, u.Username, u.CreatedAt, u.LockedAt, u.CanRequestAdmin}
	}
	sql, flat := buildInsert("users", []string{"user_id", "username", "created_at", "locked_at", "can_request_admin"}, len(rows), args)
	if _, err := w.tx.Exec(ctx, sql, flat...); err != nil {
		return fmt.Errorf("inserting users: %w", err)
	}
	return nil
}

func (w *Writer) WritePasswords(ctx context.Context, rows []migrate.DestUserPassword) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([][]any, len(rows))
	for i, p := range rows {
		args[i] = []any{p.UserPasswordID, p.UserID, p.HashedPassword, p.CreatedAt}
	}
	sql, flat := buildInsert("user_passwords", []string{"user_password_id", "user_id", "hashed_password", "created_at"}, len(rows), args)
	if _, err := w.tx.Exec(ctx, sql, flat...); err != nil {
		return fmt.Errorf("inserting user_passwords: %w", err)
	}
	return nil
}

func (w *Writer) WriteEmailThreepids(ctx context.Context, rows []migrate.DestEmailThreepid) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([][]any, len(rows))
	for i, e := range rows {
		args[i] = []any{e.UserEmailID, e.UserID, e.Email, e.CreatedAt}
	}
	sql, flat := buildInsert("user_emails", []string{"user_email_id", "user_id", "email", "created_at"}, len(rows), args)
	if _, err := w.tx.Exec(ctx, sql, flat...); err != nil {
		return fmt.Errorf("inserting user_emails: %w", err)
	}
	return nil
}

func (w *Writer) WriteUnsupportedThreepids(ctx context.Context, rows []migrate.DestUnsupportedThreepid) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([][]any, len(rows))
	for i, t := range rows {
		args[i] = []any{t.UserID, t.Medium, t.Address, t.CreatedAt}
	}
	sql, flat := buildInsert("unsupported_threepids", []string{"user_id", "medium", "address", "created_at"}, len(rows), args)
	if _, err := w.tx.Exec(ctx, sql, flat...); err != nil {
		return fmt.Errorf("inserting unsupported_threepids: %w", err)
	}
	return nil
}

func (w *Writer) WriteUpstreamOAuthLinks(ctx context.Context, rows []migrate.DestUpstreamOAuthLink) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([][]any, len(rows))
	for i, l := range rows {
		args[i] = []any{l.LinkID, l.UserID, l.UpstreamProviderID, l.Subject, l.CreatedAt}
	}
	sql, flat := buildInsert("upstream_oauth_links", []string{"link_id", "user_id", "upstream_provider_id", "subject", "created_at"}, len(rows), args)
	if _, err := w.tx.Exec(ctx, sql, flat...); err != nil {
		return fmt.Errorf("inserting upstream_oauth_links: %w", err)
	}
	return nil
}

func (w *Writer) WriteCompatSessions(ctx context.Context, rows []migrate.DestCompatSession) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([][]any, len(rows))
	for i, s := range rows {
		var ip *string
		if s.LastActiveIP != nil {
			str := s.LastActiveIP.String()
			ip = &str
		}
		args[i] = []any{
			s.SessionID, s.UserID, s.DeviceID, s.HumanName, s.CreatedAt,
			s.IsSynapseAdmin, s.LastActiveAt, ip, s.UserAgent,
		}
	}
	sql, flat := buildInsert("compat_sessions", []string{
		"session_id", "user_id", "device_id", "human_name", "created_at",
		"is_synapse_admin", "last_active_at", "last_active_ip", "user_agent",
	}, len(rows), args)
	if _, err := w.tx.Exec(ctx, sql, flat...); err != nil {
		return fmt.Errorf("inserting compat_sessions: %w", err)
	}
	return nil
}

func (w *Writer) WriteCompatAccessTokens(ctx context.Context, rows []migrate.DestCompatAccessToken) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([][]any, len(rows))
	for i, t := range rows {
		args[i] = []any{t.TokenID, t.SessionID, t.AccessToken, t.CreatedAt, t.ExpiresAt}
	}
	sql, flat := buildInsert("compat_access_tokens", []string{"token_id", "session_id", "access_token", "created_at", "expires_at"}, len(rows), args)
	if _, err := w.tx.Exec(ctx, sql, flat...); err != nil {
		return fmt.Errorf("inserting compat_access_tokens: %w", err)
	}
	return nil
}

func (w *Writer) WriteCompatRefreshTokens(ctx context.Context, rows []migrate.DestCompatRefreshToken) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([][]any, len(rows))
	for i, t := range rows {
		args[i] = []any{t.RefreshTokenID, t.SessionID, t.AccessTokenID, t.RefreshToken, t.CreatedAt}
	}
	sql, flat := buildInsert("compat_refresh_tokens", []string{"refresh_token_id", "session_id", "access_token_id", "refresh_token", "created_at"}, len(rows), args)
	if _, err := w.tx.Exec(ctx, sql, flat...); err != nil {
		return fmt.Errorf("inserting compat_refresh_tokens: %w", err)
	}
	return nil
}
