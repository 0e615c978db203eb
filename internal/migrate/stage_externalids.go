package migrate

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// stageExternalIDs streams every Synapse upstream-OAuth link record and
// resolves it against the externally supplied auth-provider mapping
// (§4.8). The link's created-at is recovered from the target user's ID,
// since Synapse never stored a creation time for these rows.
func stageExternalIDs(ctx context.Context, src SourceReader, dst DestinationWriter, serverName string, rng io.Reader, idx *userIndex, providerIDMapping map[string]uuid.UUID, batchSize int) error {
	rows, err := src.ReadUserExternalIDs(ctx)
	if err != nil {
		return &SourceReadError{Context: "reading external IDs", Err: err}
	}
	defer rows.Close()

	buf := NewWriteBuffer(wrapFlush("upstream_oauth_links", dst.WriteUpstreamOAuthLinks), batchSize)

	for rows.Next(ctx) {
		extID := rows.ExternalID()

		userID, err := idx.resolve(extID.UserID, serverName, "user_external_ids")
		if err != nil {
			return err
		}

		upstreamProviderID, ok := providerIDMapping[extID.AuthProvider]
		if !ok {
			return &MissingAuthProviderMappingError{SynapseID: extID.AuthProvider, User: extID.UserID}
		}

		// No explicit link-creation time exists in Synapse; recover
		// millisecond precision from the user ID's embedded timestamp.
		createdAt := IDTimestamp(userID)

		linkID, err := Mint(createdAt, rng)
		if err != nil {
			return err
		}

		row := DestUpstreamOAuthLink{
			LinkID:             linkID,
			UserID:             userID,
			UpstreamProviderID: upstreamProviderID,
			Subject:            extID.ExternalID,
			CreatedAt:          createdAt,
		}
		if err := buf.Write(ctx, row); err != nil {
			return &DestinationWriteError{Context: "writing upstream oauth link", Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return &SourceReadError{Context: "reading external IDs", Err: err}
	}

	if err := buf.Finish(ctx); err != nil {
		return &DestinationWriteError{Context: "writing upstream oauth links", Err: err}
	}
	return nil
}
