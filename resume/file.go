package resume

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"emperror.dev/errors"
	jsoniter "github.com/json-iterator/go"
)

const DefaultFileName = "resume-info.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileBackend stores the record as a json list in a single file
type FileBackend struct {
	Path string
}

func NewFileBackend(path string) *FileBackend {
	if path == "" {
		path = DefaultFileName
	}

	return &FileBackend{Path: path}
}

func (f *FileBackend) Load() ([]Info, error) {
	data, err := ioutil.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoRecord
		}

		return nil, errors.WithMessage(err, "read")
	}

	var infos []Info
	err = json.Unmarshal(data, &infos)
	if err != nil {
		return nil, errors.WithMessage(err, "unmarshal")
	}

	return infos, nil
}

// Save writes to a temp file in the same directory and renames it over the target, readers never see a partial record
func (f *FileBackend) Save(infos []Info) error {
	data, err := json.Marshal(infos)
	if err != nil {
		return errors.WithMessage(err, "marshal")
	}

	tmp, err := ioutil.TempFile(filepath.Dir(f.Path), filepath.Base(f.Path)+".tmp-*")
	if err != nil {
		return errors.WithMessage(err, "create temp")
	}

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}

	if cerr := tmp.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		os.Remove(tmp.Name())
		return errors.WithMessage(err, "write temp")
	}

	err = os.Rename(tmp.Name(), f.Path)
	if err != nil {
		os.Remove(tmp.Name())
		return errors.WithMessage(err, "rename")
	}

	return nil
}

func (f *FileBackend) Delete() error {
	err := os.Remove(f.Path)
	if err != nil && !os.IsNotExist(err) {
		return errors.WithStackIf(err)
	}

	return nil
}
