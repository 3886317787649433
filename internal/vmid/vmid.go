// Package vmid defines the opaque identifier types shared across vmhub.
package vmid

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MachineID identifies one managed guest machine.
type MachineID uuid.UUID

// UserID identifies one account holder.
type UserID uuid.UUID

// NilMachineID is the zero-value MachineID, never a real machine.
var NilMachineID = MachineID(uuid.Nil)

// NewMachineID parses a string form into a MachineID.
func NewMachineID(s string) (MachineID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return MachineID{}, fmt.Errorf("parse machine id %q: %w", s, err)
	}
	return MachineID(u), nil
}

// NewUserID parses a string form into a UserID.
func NewUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("parse user id %q: %w", s, err)
	}
	return UserID(u), nil
}

func (m MachineID) String() string { return uuid.UUID(m).String() }
func (u UserID) String() string    { return uuid.UUID(u).String() }

// MarshalText/UnmarshalText let MachineID serve as a JSON object key (the
// four payload-aggregate maps are keyed by machine id).
func (m MachineID) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *MachineID) UnmarshalText(text []byte) error {
	id, err := NewMachineID(string(text))
	if err != nil {
		return err
	}
	*m = id
	return nil
}

func (m MachineID) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *MachineID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := NewMachineID(s)
	if err != nil {
		return err
	}
	*m = id
	return nil
}

func (u UserID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *UserID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := NewUserID(s)
	if err != nil {
		return err
	}
	*u = id
	return nil
}

// UserIDSet is a small set helper used when resolving linked-account lookups.
type UserIDSet map[UserID]struct{}

func NewUserIDSet(ids ...UserID) UserIDSet {
	s := make(UserIDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s UserIDSet) Add(id UserID)          { s[id] = struct{}{} }
func (s UserIDSet) Has(id UserID) bool     { _, ok := s[id]; return ok }
func (s UserIDSet) Slice() []UserID {
	out := make([]UserID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}
