package migrate

import "fmt"

// SourceReadError wraps any error encountered while reading the Synapse
// database. Context names the stage that was reading, e.g. "reading
// Synapse device".
type SourceReadError struct {
	Context string
	Err     error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("reading synapse database (%s): %v", e.Context, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// DestinationWriteError wraps any error encountered while writing to the
// MAS database, including constraint violations surfaced by the driver.
type DestinationWriteError struct {
	Context string
	Err     error
}

func (e *DestinationWriteError) Error() string {
	return fmt.Sprintf("writing to mas database (%s): %v", e.Context, e.Err)
}

func (e *DestinationWriteError) Unwrap() error { return e.Err }

// InvalidUserIDError indicates a user ID did not match the canonical
// "@localpart:server_name" form, or matched a different server.
type InvalidUserIDError struct {
	User string
}

func (e *InvalidUserIDError) Error() string {
	return fmt.Sprintf("invalid user id %q", e.User)
}

// MissingUserFromDependentTableError indicates a dependent table (threepids,
// external IDs, tokens, devices) references a user that was never seen in
// the users table.
type MissingUserFromDependentTableError struct {
	Table string
	User  string
}

func (e *MissingUserFromDependentTableError) Error() string {
	return fmt.Sprintf("user %s was not found for migration but a row in %s was found for them", e.User, e.Table)
}

// MissingAuthProviderMappingError indicates an external-ID row references a
// Synapse auth_provider for which no destination upstream-provider mapping
// was supplied.
type MissingAuthProviderMappingError struct {
	SynapseID string
	User      string
}

func (e *MissingAuthProviderMappingError) Error() string {
	return fmt.Sprintf("missing a mapping for the auth provider %q (used by %s and maybe other users)", e.SynapseID, e.User)
}
