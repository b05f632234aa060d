package platform

import (
	"errors"
	"fmt"
)

// ErrUnsupportedBuild is returned by Connect when no known interface layout
// covers the running Windows build. Retrying never helps.
var ErrUnsupportedBuild = errors.New("no virtual desktop interface layout for this Windows build")

// buildRange is a half-open range of Windows build numbers. A zero max leaves
// the range open ended.
type buildRange struct {
	min, max uint32
}

// matches reports whether the running build falls in r, given a predicate
// reporting whether the build is at least n.
func (r buildRange) matches(atLeast func(n uint32) bool) bool {
	if !atLeast(r.min) {
		return false
	}
	return r.max == 0 || !atLeast(r.max)
}

func (r buildRange) String() string {
	if r.max == 0 {
		return fmt.Sprintf("%d+", r.min)
	}
	return fmt.Sprintf("%d-%d", r.min, r.max-1)
}
