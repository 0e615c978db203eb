package migrate

import (
	"context"
	"io"
)

// stageThreepids streams every Synapse third-party identifier, routing
// "email" to DestEmailThreepid and everything else to
// DestUnsupportedThreepid verbatim (§4.7).
func stageThreepids(ctx context.Context, src SourceReader, dst DestinationWriter, serverName string, rng io.Reader, idx *userIndex, batchSize int) error {
	rows, err := src.ReadThreepids(ctx)
	if err != nil {
		return &SourceReadError{Context: "reading threepids", Err: err}
	}
	defer rows.Close()

	emailBuf := NewWriteBuffer(wrapFlush("user_emails", dst.WriteEmailThreepids), batchSize)
	unsupportedBuf := NewWriteBuffer(wrapFlush("unsupported_threepids", dst.WriteUnsupportedThreepids), batchSize)

	for rows.Next(ctx) {
		threepid := rows.Threepid()

		userID, err := idx.resolve(threepid.UserID, serverName, "user_threepids")
		if err != nil {
			return err
		}

		if threepid.Medium == "email" {
			emailID, err := Mint(threepid.AddedAt, rng)
			if err != nil {
				return err
			}
			row := DestEmailThreepid{
				UserEmailID: emailID,
				UserID:      userID,
				Email:       threepid.Address,
				CreatedAt:   threepid.AddedAt,
			}
			if err := emailBuf.Write(ctx, row); err != nil {
				return &DestinationWriteError{Context: "writing email threepid", Err: err}
			}
			continue
		}

		row := DestUnsupportedThreepid{
			UserID:    userID,
			Medium:    threepid.Medium,
			Address:   threepid.Address,
			CreatedAt: threepid.AddedAt,
		}
		if err := unsupportedBuf.Write(ctx, row); err != nil {
			return &DestinationWriteError{Context: "writing unsupported threepid", Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return &SourceReadError{Context: "reading threepids", Err: err}
	}

	if err := emailBuf.Finish(ctx); err != nil {
		return &DestinationWriteError{Context: "writing email threepids", Err: err}
	}
	if err := unsupportedBuf.Finish(ctx); err != nil {
		return &DestinationWriteError{Context: "writing unsupported threepids", Err: err}
	}

	return nil
}
