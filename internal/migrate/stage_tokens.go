package migrate

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// stageUnrefreshableAccessTokens is pass 1 of the token/session coalescer
// (§4.9.1). It runs before the device stage so that device-backed sessions
// are dated by the earliest token seen for them rather than by "now".
func stageUnrefreshableAccessTokens(ctx context.Context, src SourceReader, dst DestinationWriter, serverName string, clock Clock, rng io.Reader, idx *userIndex, sessions *sessionIndex, batchSize int) error {
	rows, err := src.ReadUnrefreshableAccessTokens(ctx)
	if err != nil {
		return &SourceReadError{Context: "reading unrefreshable access tokens", Err: err}
	}
	defer rows.Close()

	tokenBuf := NewWriteBuffer(wrapFlush("compat_access_tokens", dst.WriteCompatAccessTokens), batchSize)
	devicelessSessionBuf := NewWriteBuffer(wrapFlush("compat_sessions", dst.WriteCompatSessions), batchSize)

	for rows.Next(ctx) {
		token := rows.AccessToken()

		userID, err := idx.resolve(token.UserID, serverName, "access_tokens")
		if err != nil {
			return err
		}

		// last_validated is not always accurate, but it's often the
		// closest thing Synapse has to a token creation time.
		createdAt := clock.Now()
		if token.LastValidated != nil {
			createdAt = *token.LastValidated
		}

		var sessionID uuid.UUID
		if token.DeviceID != nil {
			// Reuse the existing session if this is the second token
			// seen for this device; it is dated by whichever token was
			// seen first, not necessarily the earliest last_validated.
			// This reproduces Synapse's observed behavior rather than
			// "fixing" it.
			sessionID, err = sessions.getOrMint(userID, *token.DeviceID, func() (uuid.UUID, error) {
				return Mint(createdAt, rng)
			})
			if err != nil {
				return err
			}
			// The session row itself is emitted later, by the device
			// stage — emitting it here too would double-insert.
		} else {
			// Deviceless tokens are never revisited by the device
			// stage, so their session must be emitted here.
			sessionID, err = Mint(createdAt, rng)
			if err != nil {
				return err
			}
			session := DestCompatSession{
				SessionID:      sessionID,
				UserID:         userID,
				DeviceID:       nil,
				HumanName:      nil,
				CreatedAt:      createdAt,
				IsSynapseAdmin: false,
				LastActiveAt:   nil,
				LastActiveIP:   nil,
				UserAgent:      nil,
			}
			if err := devicelessSessionBuf.Write(ctx, session); err != nil {
				return &DestinationWriteError{Context: "writing deviceless compat session", Err: err}
			}
		}

		tokenID, err := Mint(createdAt, rng)
		if err != nil {
			return err
		}

		accessToken := DestCompatAccessToken{
			TokenID:     tokenID,
			SessionID:   sessionID,
			AccessToken: token.Token,
			CreatedAt:   createdAt,
			ExpiresAt:   token.ValidUntilMs,
		}
		if err := tokenBuf.Write(ctx, accessToken); err != nil {
			return &DestinationWriteError{Context: "writing compat access token", Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return &SourceReadError{Context: "reading unrefreshable access tokens", Err: err}
	}

	if err := tokenBuf.Finish(ctx); err != nil {
		return &DestinationWriteError{Context: "writing compat access tokens", Err: err}
	}
	if err := devicelessSessionBuf.Finish(ctx); err != nil {
		return &DestinationWriteError{Context: "writing deviceless compat sessions", Err: err}
	}

	return nil
}

// stageRefreshableTokenPairs is pass 2 of the token/session coalescer
// (§4.9.2). device_id is required by the source schema for these rows.
func stageRefreshableTokenPairs(ctx context.Context, src SourceReader, dst DestinationWriter, serverName string, clock Clock, rng io.Reader, idx *userIndex, sessions *sessionIndex, batchSize int) error {
	rows, err := src.ReadRefreshableTokenPairs(ctx)
	if err != nil {
		return &SourceReadError{Context: "reading refreshable token pairs", Err: err}
	}
	defer rows.Close()

	accessTokenBuf := NewWriteBuffer(wrapFlush("compat_access_tokens", dst.WriteCompatAccessTokens), batchSize)
	refreshTokenBuf := NewWriteBuffer(wrapFlush("compat_refresh_tokens", dst.WriteCompatRefreshTokens), batchSize)

	for rows.Next(ctx) {
		pair := rows.Pair()

		userID, err := idx.resolve(pair.UserID, serverName, "refresh_tokens")
		if err != nil {
			return err
		}

		createdAt := clock.Now()
		if pair.LastValidated != nil {
			createdAt = *pair.LastValidated
		}

		sessionID, err := sessions.getOrMint(userID, pair.DeviceID, func() (uuid.UUID, error) {
			return Mint(createdAt, rng)
		})
		if err != nil {
			return err
		}

		accessTokenID, err := Mint(createdAt, rng)
		if err != nil {
			return err
		}
		refreshTokenID, err := Mint(createdAt, rng)
		if err != nil {
			return err
		}

		accessToken := DestCompatAccessToken{
			TokenID:     accessTokenID,
			SessionID:   sessionID,
			AccessToken: pair.AccessToken,
			CreatedAt:   createdAt,
			ExpiresAt:   pair.ValidUntilMs,
		}
		if err := accessTokenBuf.Write(ctx, accessToken); err != nil {
			return &DestinationWriteError{Context: "writing compat access token", Err: err}
		}

		refreshToken := DestCompatRefreshToken{
			RefreshTokenID: refreshTokenID,
			SessionID:      sessionID,
			AccessTokenID:  accessTokenID,
			RefreshToken:   pair.RefreshToken,
			CreatedAt:      createdAt,
		}
		if err := refreshTokenBuf.Write(ctx, refreshToken); err != nil {
			return &DestinationWriteError{Context: "writing compat refresh token", Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return &SourceReadError{Context: "reading refreshable token pairs", Err: err}
	}

	if err := accessTokenBuf.Finish(ctx); err != nil {
		return &DestinationWriteError{Context: "writing compat access tokens", Err: err}
	}
	if err := refreshTokenBuf.Finish(ctx); err != nil {
		return &DestinationWriteError{Context: "writing compat refresh tokens", Err: err}
	}

	return nil
}
