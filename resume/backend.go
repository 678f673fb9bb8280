package resume

import (
	"emperror.dev/errors"
)

// ErrNoRecord is returned by Backend.Load when there is nothing stored
var ErrNoRecord = errors.NewPlain("no resume record stored")

// Backend persists a resume record as a single unit
type Backend interface {
	Load() ([]Info, error)
	Save(infos []Info) error
	Delete() error
}
