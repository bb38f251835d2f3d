package governance

import (
	"fmt"
	"strconv"
	"strings"
)

// SeedVersion is the doctrine version seeded on first governance action.
const SeedVersion = "13.0.0"

// VersionBump selects which semantic component an accepted proposal
// increments. MINOR is the default for accepted changes.
type VersionBump string

const (
	BumpMajor VersionBump = "MAJOR"
	BumpMinor VersionBump = "MINOR"
	BumpPatch VersionBump = "PATCH"
)

// BumpVersion increments the selected component of a MAJOR.MINOR.PATCH
// string, resetting lower components to zero.
func BumpVersion(version string, bump VersionBump) (string, error) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("doctrine version %q is not MAJOR.MINOR.PATCH", version)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return "", fmt.Errorf("doctrine version %q has non-numeric component %q", version, p)
		}
		nums[i] = n
	}
	switch bump {
	case BumpMajor:
		nums[0]++
		nums[1], nums[2] = 0, 0
	case BumpMinor:
		nums[1]++
		nums[2] = 0
	case BumpPatch:
		nums[2]++
	default:
		return "", fmt.Errorf("unknown version bump %q", bump)
	}
	return fmt.Sprintf("%d.%d.%d", nums[0], nums[1], nums[2]), nil
}
