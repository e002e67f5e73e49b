package config

import (
	"os"
	"strings"
)

// Environment selects defaults and how strict validation is.
type Environment string

const (
	Development Environment = "development"
	Test        Environment = "test"
	CI          Environment = "ci"
	Production  Environment = "production"
)

// detectEnvironment resolves the environment through get. CI=true wins, then
// PANTRYCAM_ENV, then ENV. Anything unrecognized is development.
func detectEnvironment(get func(string) string) Environment {
	if get("CI") == "true" {
		return CI
	}
	name := get("PANTRYCAM_ENV")
	if name == "" {
		name = get("ENV")
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "production", "prod":
		return Production
	case "test":
		return Test
	case "ci":
		return CI
	default:
		return Development
	}
}

// GetEnvironment reads the environment from the process.
func GetEnvironment() Environment {
	return detectEnvironment(os.Getenv)
}

// RequiresSecrets reports whether a JWT secret must be configured.
func (e Environment) RequiresSecrets() bool {
	return e == Production || e == CI
}

// JSONLogs reports whether logs are written as JSON instead of console text.
func (e Environment) JSONLogs() bool {
	return e == Production
}
