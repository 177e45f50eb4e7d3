package transport

import (
	"fmt"
	"strings"
)

// Level is a peer's access level. Higher levels include lower ones.
type Level uint8

const (
	LevelUser Level = iota
	LevelAdmin
	LevelSuperAdmin
)

func (l Level) String() string {
	switch l {
	case LevelUser:
		return "user"
	case LevelAdmin:
		return "admin"
	case LevelSuperAdmin:
		return "superadmin"
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// ParseLevel parses "user", "admin" or "superadmin". The empty string is user.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user":
		return LevelUser, nil
	case "admin":
		return LevelAdmin, nil
	case "superadmin":
		return LevelSuperAdmin, nil
	}
	return LevelUser, fmt.Errorf("%w: unknown access level %q", ErrInvalidArgument, s)
}
