package uuidstring

import (
	"github.com/google/uuid"
)

type ID string

func NewID() ID {
	return ID(uuid.New().String())
}

func (id ID) UUID() (uuid.UUID, error) {
	if id == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(string(id))
}

func (id ID) IsZero() bool {
	return id == ""
}

// Short returns the first block of the id, handy for log lines.
func (id ID) Short() string {
	if len(id) < 8 {
		return string(id)
	}
	return string(id[:8])
}

func (id ID) String() string {
	return string(id)
}

func (id ID) MarshalBinary() (data []byte, err error) {
	return []byte(id), nil
}
