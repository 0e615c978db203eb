package migrate

import (
	"context"
	"io"
	"time"
)

// stageUsers streams every Synapse user, emits a DestUser (and optional
// DestUserPassword) for each, and builds the localpart→UUID index and the
// Synapse-admin set that every later stage depends on (§4.6).
func stageUsers(ctx context.Context, src SourceReader, dst DestinationWriter, serverName string, rng io.Reader, userCountHint int64, batchSize int) (*userIndex, error) {
	rows, err := src.ReadUsers(ctx)
	if err != nil {
		return nil, &SourceReadError{Context: "reading users", Err: err}
	}
	defer rows.Close()

	idx := newUserIndex(userCountHint)

	userBuf := NewWriteBuffer(wrapFlush("users", dst.WriteUsers), batchSize)
	passwordBuf := NewWriteBuffer(wrapFlush("user_passwords", dst.WritePasswords), batchSize)

	for rows.Next(ctx) {
		user := rows.User()

		localpart, err := ExtractLocalpart(user.UserID, serverName)
		if err != nil {
			return nil, err
		}

		userID, err := Mint(user.CreatedAt, rng)
		if err != nil {
			return nil, err
		}

		var lockedAt *time.Time
		if user.Deactivated {
			t := user.CreatedAt
			lockedAt = &t
		}

		destUser := DestUser{
			UserID:          userID,
			Username:        localpart,
			CreatedAt:       user.CreatedAt,
			LockedAt:        lockedAt,
			CanRequestAdmin: user.Admin,
		}

		if user.Admin {
			idx.markAdmin(userID)
		}
		idx.put(localpart, userID)

		if err := userBuf.Write(ctx, destUser); err != nil {
			return nil, &DestinationWriteError{Context: "writing user", Err: err}
		}

		if user.PasswordHash != nil {
			passwordID, err := Mint(user.CreatedAt, rng)
			if err != nil {
				return nil, err
			}
			password := DestUserPassword{
				UserPasswordID: passwordID,
				UserID:         userID,
				HashedPassword: *user.PasswordHash,
				CreatedAt:      user.CreatedAt,
			}
			if err := passwordBuf.Write(ctx, password); err != nil {
				return nil, &DestinationWriteError{Context: "writing user password", Err: err}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &SourceReadError{Context: "reading users", Err: err}
	}

	if err := userBuf.Finish(ctx); err != nil {
		return nil, &DestinationWriteError{Context: "writing users", Err: err}
	}
	if err := passwordBuf.Finish(ctx); err != nil {
		return nil, &DestinationWriteError{Context: "writing passwords", Err: err}
	}

	return idx, nil
}

// wrapFlush adapts a DestinationWriter batch method into a FlushFunc that
// also records the rows-written metric, so every stage's write buffers
// report to the same counter without repeating the bookkeeping.
func wrapFlush[T any](table string, write func(context.Context, []T) error) FlushFunc[T] {
	return func(ctx context.Context, rows []T) error {
		if err := write(ctx, rows); err != nil {
			return err
		}
		RowsMigratedTotal.WithLabelValues(table).Add(float64(len(rows)))
		return nil
	}
}
