package version

import (
	"fmt"
	"strconv"
	"strings"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
)

// Client should be within 2 minor versions of the server
const MinorVersionCompatibility = 2

// CompatibilityChecker compares the client build version against the version
// reported by the service.
type CompatibilityChecker struct {
	clientVersion Info
}

func NewCompatibilityChecker() *CompatibilityChecker {
	return &CompatibilityChecker{
		clientVersion: Get(),
	}
}

// CheckCompatibility returns an error when client and server differ in major
// version or drift more than MinorVersionCompatibility minor versions apart.
// Versions that do not parse, such as devel builds, are treated as compatible.
func (c *CompatibilityChecker) CheckCompatibility(serverVersion *api.Version) error {
	if serverVersion == nil {
		return nil
	}

	clientMajor, clientMinor, err := parseVersion(c.clientVersion.GitVersion)
	if err != nil {
		return nil
	}

	serverMajor, serverMinor, err := parseVersion(serverVersion.Version)
	if err != nil {
		return nil
	}

	if clientMajor != serverMajor {
		return fmt.Errorf("version incompatibility detected: client %s vs server %s (different major versions)",
			c.clientVersion.GitVersion, serverVersion.Version)
	}

	if delta := clientMinor - serverMinor; delta > MinorVersionCompatibility || delta < -MinorVersionCompatibility {
		return fmt.Errorf("version incompatibility detected: client %s vs server %s (minor delta exceeds %d)",
			c.clientVersion.GitVersion, serverVersion.Version, MinorVersionCompatibility)
	}

	return nil
}

// parseVersion handles version strings like "0.9.1-rc.0", "0.5" and "v1.2.3".
func parseVersion(versionStr string) (major, minor int, err error) {
	versionStr = strings.TrimSpace(versionStr)
	versionStr = strings.TrimPrefix(versionStr, "v")

	parts := strings.Split(versionStr, ".")
	const minSemverParts = 2
	if len(parts) < minSemverParts {
		return 0, 0, fmt.Errorf("invalid version format: %s", versionStr)
	}

	majorStr := strings.Split(parts[0], "-")[0]
	major, err = strconv.Atoi(majorStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid major version: %s", majorStr)
	}

	minorStr := strings.Split(parts[1], "-")[0]
	minor, err = strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minor version: %s", minorStr)
	}

	return major, minor, nil
}
