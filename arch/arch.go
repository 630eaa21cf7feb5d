package arch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupported is returned when an architecture token is not recognized.
var ErrUnsupported = errors.New("unsupported architecture")

// Architecture defines the set of target architectures accepted by the bakery.
// Values follow Debian's port names since recipes install packages with apt.
type Architecture string

const (
	Amd64 Architecture = "amd64"
	Arm64 Architecture = "arm64"
	Armv7 Architecture = "armv7"
	Armhf Architecture = "armhf"
	Arm   Architecture = "arm"
)

// Default is used when a project does not configure an architecture.
const Default = Arm64

// Supported returns the full list of supported architectures.
func Supported() []Architecture {
	return []Architecture{
		Amd64,
		Arm64,
		Armv7,
		Armhf,
		Arm,
	}
}

// IsValid reports whether a matches a supported architecture value.
func (a Architecture) IsValid() bool {
	switch a {
	case Amd64, Arm64, Armv7, Armhf, Arm:
		return true
	default:
		return false
	}
}

// String returns the architecture as string.
func (a Architecture) String() string {
	return string(a)
}

// UnmarshalText lets architectures be decoded directly from configuration files.
func (a *Architecture) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Parse returns the canonical Architecture for the provided string or an error if unsupported.
func Parse(value string) (Architecture, error) {
	if arch := Normalize(value); arch.IsValid() {
		return arch, nil
	}
	return "", fmt.Errorf("%w %q (supported: %s)", ErrUnsupported, value, strings.Join(supportedStrings(), ", "))
}

// Normalize maps a possibly ambiguous string into a canonical Architecture. Returns ""
// when the string cannot be normalized.
//
// Only exact names are accepted for the 32-bit ARM variants because armhf
// and armv7 select different package sets.
func Normalize(value string) Architecture {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case string(Amd64), "x86_64", "x86-64":
		return Amd64
	case string(Arm64), "aarch64":
		return Arm64
	case string(Armv7), "armv7l":
		return Armv7
	case string(Armhf):
		return Armhf
	case string(Arm):
		return Arm
	default:
		return ""
	}
}

func supportedStrings() []string {
	all := Supported()
	out := make([]string, 0, len(all))
	for _, a := range all {
		out = append(out, a.String())
	}
	sort.Strings(out)
	return out
}
