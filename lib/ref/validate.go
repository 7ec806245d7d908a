// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// splitSigil takes apart a sigil-prefixed Matrix identifier
// (@localpart:server, #localpart:server). The first colon after the
// sigil separates the parts, so server names may carry a port.
func splitSigil(identifier string, sigil byte, kind string) (localpart, server string, err error) {
	if len(identifier) < 2 || identifier[0] != sigil {
		return "", "", fmt.Errorf("invalid %s %q: must start with %c", kind, identifier, sigil)
	}
	localpart, server, found := strings.Cut(identifier[1:], ":")
	switch {
	case !found:
		return "", "", fmt.Errorf("invalid %s %q: missing :server", kind, identifier)
	case localpart == "":
		return "", "", fmt.Errorf("invalid %s %q: empty localpart", kind, identifier)
	case server == "":
		return "", "", fmt.Errorf("invalid %s %q: empty server", kind, identifier)
	}
	return localpart, server, nil
}

// validateServer rejects server names that are empty or carry control
// characters or Matrix sigils. Anything else passes; DNS-level
// validity is the homeserver's problem.
func validateServer(server string) error {
	if server == "" {
		return fmt.Errorf("server name is empty")
	}
	for i := range len(server) {
		switch c := server[i]; {
		case c <= ' ', c == '@', c == '#':
			return fmt.Errorf("server name %q: invalid character at position %d", server, i)
		}
	}
	return nil
}

// MatrixUserID assembles @localpart:server from parts the program
// already trusts, such as the service account name from configuration.
func MatrixUserID(localpart string, server ServerName) UserID {
	return UserID{id: "@" + localpart + ":" + server.name}
}

// ServerFromUserID pulls the server name out of @localpart:server.
// CLI commands use it to find the homeserver behind a saved session.
func ServerFromUserID(userID string) (ServerName, error) {
	_, server, err := splitSigil(userID, '@', "Matrix user ID")
	if err != nil {
		return ServerName{}, err
	}
	return newServerName(server), nil
}

// mustParse backs the MustParseX constructors: parse or panic.
func mustParse[T any](raw string, parse func(string) (T, error), kind string) T {
	value, err := parse(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParse%s(%q): %v", kind, raw, err))
	}
	return value
}

// unmarshalText backs every UnmarshalText method: empty input becomes
// the zero value, anything else goes through the type's parser.
func unmarshalText[T any](data []byte, parse func(string) (T, error), target *T) error {
	if len(data) == 0 {
		var zero T
		*target = zero
		return nil
	}
	value, err := parse(string(data))
	if err != nil {
		return err
	}
	*target = value
	return nil
}
