package resume

import (
	"emperror.dev/errors"
	"github.com/tidwall/buntdb"
)

const DefaultBuntKey = "resume_info"

// BuntBackend keeps the json record in an embedded buntdb file, for hosts without redis
type BuntBackend struct {
	db  *buntdb.DB
	Key string
}

// OpenBuntBackend opens (or creates) the database at path, ":memory:" keeps it in memory
func OpenBuntBackend(path string) (*BuntBackend, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.WithMessage(err, "buntdb open")
	}

	return &BuntBackend{db: db, Key: DefaultBuntKey}, nil
}

func (b *BuntBackend) Load() ([]Info, error) {
	var infos []Info
	err := b.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(b.Key)
		if err != nil {
			return err
		}

		return json.UnmarshalFromString(v, &infos)
	})

	if err == buntdb.ErrNotFound {
		return nil, ErrNoRecord
	}

	return infos, errors.WithMessage(err, "buntdb load")
}

func (b *BuntBackend) Save(infos []Info) error {
	data, err := json.MarshalToString(infos)
	if err != nil {
		return errors.WithMessage(err, "json marshal")
	}

	err = b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(b.Key, data, nil)
		return err
	})
	return errors.WithMessage(err, "buntdb save")
}

func (b *BuntBackend) Delete() error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(b.Key)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
	return errors.WithMessage(err, "buntdb delete")
}

func (b *BuntBackend) Close() error {
	return b.db.Close()
}
