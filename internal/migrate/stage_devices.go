package migrate

import (
	"context"
	"io"
	"log/slog"
	"net/netip"

	"github.com/google/uuid"
)

// stageDevices streams every Synapse device and emits the compat session
// for it (§4.10). Sessions for devices that already had a token were named
// during the token stages and are only emitted here; devices with no token
// at all get a session minted from the clock as a least-evil fallback.
func stageDevices(ctx context.Context, src SourceReader, dst DestinationWriter, serverName string, clock Clock, rng io.Reader, logger *slog.Logger, idx *userIndex, sessions *sessionIndex, batchSize int) error {
	rows, err := src.ReadDevices(ctx)
	if err != nil {
		return &SourceReadError{Context: "reading Synapse device", Err: err}
	}
	defer rows.Close()

	buf := NewWriteBuffer(wrapFlush("compat_sessions", dst.WriteCompatSessions), batchSize)

	for rows.Next(ctx) {
		device := rows.Device()

		userID, err := idx.resolve(device.UserID, serverName, "devices")
		if err != nil {
			return err
		}

		sessionID, hit := sessions.lookup(userID, device.DeviceID)
		if !hit {
			sessionID, err = sessions.getOrMint(userID, device.DeviceID, func() (uuid.UUID, error) {
				return MintNow(clock, rng)
			})
			if err != nil {
				return err
			}
		}
		createdAt := IDTimestamp(sessionID)

		var lastActiveIP *netip.Addr
		if device.IP != nil {
			if addr, parseErr := netip.ParseAddr(*device.IP); parseErr == nil {
				lastActiveIP = &addr
			} else {
				DeviceIPParseFailuresTotal.Inc()
				logger.Warn("failed to parse device IP, storing null",
					"mxid", device.UserID,
					"device_id", device.DeviceID,
					"ip", *device.IP,
					"error", parseErr,
				)
			}
		}

		session := DestCompatSession{
			SessionID:      sessionID,
			UserID:         userID,
			DeviceID:       &device.DeviceID,
			HumanName:      device.DisplayName,
			CreatedAt:      createdAt,
			IsSynapseAdmin: idx.isAdmin(userID),
			LastActiveAt:   device.LastSeen,
			LastActiveIP:   lastActiveIP,
			UserAgent:      device.UserAgent,
		}
		if err := buf.Write(ctx, session); err != nil {
			return &DestinationWriteError{Context: "writing compat session", Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return &SourceReadError{Context: "reading Synapse device", Err: err}
	}

	if err := buf.Finish(ctx); err != nil {
		return &DestinationWriteError{Context: "writing compat sessions", Err: err}
	}
	return nil
}
