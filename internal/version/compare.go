// Package version compares a strategy's exported API version against the
// host engine's own version, enforcing the major.minor compatibility rule
// the sandbox runs before calling into a guest module.
package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/kline-runner/runner/pkg/errors"
)

// CheckCompatible reports whether guestVersion (a strategy module's
// exported strategy_api_version) is compatible with engineVersion: major
// and minor must match exactly, patch may differ freely. Either side being
// "main" (a development build) skips the check entirely.
func CheckCompatible(engineVersion, guestVersion string) error {
	engineVersion = strings.TrimPrefix(engineVersion, "v")
	guestVersion = strings.TrimPrefix(guestVersion, "v")

	if engineVersion == "main" || guestVersion == "main" {
		return nil
	}

	engineSemver, err := semver.NewVersion(engineVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeVersionMismatch, err, "engine version %q is not a valid semver", engineVersion)
	}

	guestSemver, err := semver.NewVersion(guestVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeVersionMismatch, err, "malformed strategy_api_version %q", guestVersion)
	}

	if engineSemver.Major() != guestSemver.Major() || engineSemver.Minor() != guestSemver.Minor() {
		return errors.Newf(errors.ErrCodeVersionMismatch, "strategy api version %s is incompatible with engine %s", guestSemver, engineSemver)
	}

	return nil
}
