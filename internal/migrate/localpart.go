package migrate

import "strings"

// ExtractLocalpart splits a fully-qualified Matrix user ID of the form
// "@localpart:server" into its localpart, validating that the server part
// matches expectedServer byte-for-byte. No normalisation or case folding is
// performed: this is the only inline validation of source data the
// migration performs.
func ExtractLocalpart(userID, expectedServer string) (string, error) {
	if !strings.HasPrefix(userID, "@") {
		return "", &InvalidUserIDError{User: userID}
	}

	rest := userID[1:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return "", &InvalidUserIDError{User: userID}
	}

	localpart, server := rest[:colon], rest[colon+1:]
	if server != expectedServer {
		return "", &InvalidUserIDError{User: userID}
	}

	return localpart, nil
}
