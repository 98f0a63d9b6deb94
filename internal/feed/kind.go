// ABOUTME: The three named feeds the store keeps: home, own profile, other profile.
// ABOUTME: Kinds are a closed set; anything else is a programming error.
package feed

import "fmt"

// Kind names one of the store's feeds.
type Kind int

const (
	Home Kind = iota
	OwnProfile
	OtherProfile

	numKinds = 3
)

var kindNames = [numKinds]string{"home", "own_profile", "other_profile"}

// Kinds lists every feed kind in a stable order.
func Kinds() []Kind {
	return []Kind{Home, OwnProfile, OtherProfile}
}

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) valid() bool {
	return k >= 0 && k < numKinds
}

func (k Kind) mustBeValid() {
	if !k.valid() {
		panic(fmt.Sprintf("feed: unknown kind %d", int(k)))
	}
}

// ParseKind converts a kind name back to a Kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown feed kind %q", s)
}
