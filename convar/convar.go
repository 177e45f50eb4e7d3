// Package convar holds the server's named configuration variables.
//
// A Var carries a string value, a default and a set of flags. Every mutation
// names its Origin, so change callbacks can tell a client-requested change
// from a console edit or a value read back from the settings store.
package convar

import (
	"strings"
)

// Flag describes how a variable is treated.
type Flag uint8

const (
	// FlagReplicated marks a variable mirrored to clients.
	FlagReplicated Flag = 1 << iota
	// FlagArchive marks a variable saved in the settings store.
	FlagArchive
	// FlagNotify marks a variable whose changes are announced to players.
	FlagNotify
)

func (f Flag) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&FlagReplicated != 0 {
		parts = append(parts, "replicated")
	}
	if f&FlagArchive != 0 {
		parts = append(parts, "archive")
	}
	if f&FlagNotify != 0 {
		parts = append(parts, "notify")
	}
	return strings.Join(parts, "|")
}

// Origin says where a mutation came from.
type Origin uint8

const (
	// OriginExternal is a console or admin edit on the server.
	OriginExternal Origin = iota
	// OriginClient is a change requested by a connected client.
	OriginClient
	// OriginStore is a value applied from the settings store.
	OriginStore
)

func (o Origin) String() string {
	switch o {
	case OriginExternal:
		return "external"
	case OriginClient:
		return "client"
	case OriginStore:
		return "store"
	}
	return "unknown"
}

// ChangeFunc is called after a variable's value changed.
type ChangeFunc func(v *Var, old, new string, origin Origin)

// Var is one configuration variable. It is not safe for concurrent use;
// mutations happen on the server's dispatch goroutine.
type Var struct {
	name      string
	def       string
	value     string
	flags     Flag
	callbacks []ChangeFunc
}

func newVar(name, def string, flags Flag) *Var {
	return &Var{name: name, def: def, value: def, flags: flags}
}

func (v *Var) Name() string    { return v.name }
func (v *Var) Default() string { return v.def }
func (v *Var) Flags() Flag     { return v.flags }

// Has reports whether every bit of f is set.
func (v *Var) Has(f Flag) bool { return v.flags&f == f }

// String returns the current value.
func (v *Var) String() string { return v.value }

// OnChange adds fn to the callbacks run after each change.
func (v *Var) OnChange(fn ChangeFunc) {
	v.callbacks = append(v.callbacks, fn)
}

// Set changes the value and runs the callbacks in the order they were added.
// Setting the current value does nothing and reports false.
func (v *Var) Set(value string, origin Origin) bool {
	if value == v.value {
		return false
	}
	old := v.value
	v.value = value
	for _, fn := range v.callbacks {
		fn(v, old, value, origin)
	}
	return true
}

// Reset restores the default value.
func (v *Var) Reset(origin Origin) bool {
	return v.Set(v.def, origin)
}
