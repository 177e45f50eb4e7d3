package transport

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument is returned for malformed targets and call arguments.
var ErrInvalidArgument = errors.New("invalid argument")

// PeerID identifies a connected client.
type PeerID string

// ServerPeer stands in for the server itself as the origin of a change.
const ServerPeer PeerID = "server"

type targetKind uint8

const (
	targetAll targetKind = iota
	targetOne
	targetSet
)

// Targets selects the peers a message goes to. The zero value is All().
type Targets struct {
	kind targetKind
	ids  []PeerID
}

// All targets every connected peer.
func All() Targets { return Targets{kind: targetAll} }

// One targets a single peer.
func One(id PeerID) Targets { return Targets{kind: targetOne, ids: []PeerID{id}} }

// Set targets an explicit set of peers. Duplicates are sent once.
func Set(ids ...PeerID) Targets {
	return Targets{kind: targetSet, ids: append([]PeerID(nil), ids...)}
}

// IsAll reports whether t targets every peer.
func (t Targets) IsAll() bool { return t.kind == targetAll }

// IDs returns the explicit peer ids, nil for All.
func (t Targets) IDs() []PeerID {
	if t.kind == targetAll {
		return nil
	}
	return append([]PeerID(nil), t.ids...)
}

// Validate rejects shapes other than all, one non-empty id, or a non-empty set.
func (t Targets) Validate() error {
	switch t.kind {
	case targetAll:
		return nil
	case targetOne:
		if len(t.ids) != 1 || t.ids[0] == "" {
			return fmt.Errorf("%w: single target without peer id", ErrInvalidArgument)
		}
		return nil
	case targetSet:
		if len(t.ids) == 0 {
			return fmt.Errorf("%w: empty target set", ErrInvalidArgument)
		}
		for _, id := range t.ids {
			if id == "" {
				return fmt.Errorf("%w: empty peer id in target set", ErrInvalidArgument)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: unknown target kind %d", ErrInvalidArgument, t.kind)
}

func (t Targets) String() string {
	switch t.kind {
	case targetAll:
		return "all"
	case targetOne:
		if len(t.ids) == 1 {
			return string(t.ids[0])
		}
	}
	parts := make([]string, len(t.ids))
	for i, id := range t.ids {
		parts[i] = string(id)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
