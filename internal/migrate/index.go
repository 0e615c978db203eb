package migrate

import "github.com/google/uuid"

// userIndex maps a source user's localpart to its minted MAS user ID, and
// tracks which user IDs correspond to Synapse admins. It is built entirely
// by the user stage (§4.6) and read by every later stage; it must not
// outlive one Migrate call.
type userIndex struct {
	localpartToUserID map[string]uuid.UUID
	synapseAdmins     map[uuid.UUID]struct{}
}

func newUserIndex(userCountHint int64) *userIndex {
	return &userIndex{
		localpartToUserID: make(map[string]uuid.UUID, userCountHint),
		synapseAdmins:     make(map[uuid.UUID]struct{}),
	}
}

func (idx *userIndex) put(localpart string, userID uuid.UUID) {
	idx.localpartToUserID[localpart] = userID
}

func (idx *userIndex) markAdmin(userID uuid.UUID) {
	idx.synapseAdmins[userID] = struct{}{}
}

func (idx *userIndex) isAdmin(userID uuid.UUID) bool {
	_, ok := idx.synapseAdmins[userID]
	return ok
}

// resolve looks up the MAS user ID for a fully-qualified Synapse user ID,
// extracting its localpart against serverName first. table is used only to
// build MissingUserFromDependentTableError if the lookup fails.
func (idx *userIndex) resolve(synapseUserID, serverName, table string) (uuid.UUID, error) {
	localpart, err := ExtractLocalpart(synapseUserID, serverName)
	if err != nil {
		return uuid.Nil, err
	}
	userID, ok := idx.localpartToUserID[localpart]
	if !ok {
		return uuid.Nil, &MissingUserFromDependentTableError{Table: table, User: synapseUserID}
	}
	return userID, nil
}

// deviceSessionKey identifies a (user, device) pair, the granularity at
// which compat sessions are coalesced (invariant 3 of §3).
type deviceSessionKey struct {
	userID   uuid.UUID
	deviceID string
}

// sessionIndex maps a (user, device) pair to the compat_session ID that
// will represent it, threaded between the token stages (§4.9) and the
// device stage (§4.10) so each device is dated by the first token seen for
// it (in stream order, not necessarily the one with the earliest timestamp).
type sessionIndex struct {
	byDevice map[deviceSessionKey]uuid.UUID
}

func newSessionIndex(deviceCountHint int64) *sessionIndex {
	return &sessionIndex{
		byDevice: make(map[deviceSessionKey]uuid.UUID, deviceCountHint),
	}
}

// getOrMint returns the existing session ID for (userID, deviceID), or
// mints one via mint and records it. The mint function is only invoked on a
// miss.
func (s *sessionIndex) getOrMint(userID uuid.UUID, deviceID string, mint func() (uuid.UUID, error)) (uuid.UUID, error) {
	key := deviceSessionKey{userID: userID, deviceID: deviceID}
	if id, ok := s.byDevice[key]; ok {
		return id, nil
	}
	id, err := mint()
	if err != nil {
		return uuid.Nil, err
	}
	s.byDevice[key] = id
	return id, nil
}

func (s *sessionIndex) lookup(userID uuid.UUID, deviceID string) (uuid.UUID, bool) {
	id, ok := s.byDevice[deviceSessionKey{userID: userID, deviceID: deviceID}]
	return id, ok
}
