package resume

import (
	"io"

	"emperror.dev/errors"
	"github.com/botlabs-gg/dshardrelay/common"
)

var logger = common.GetFixedPrefixLogger("resume")

// Store restores and saves resume records, a record is only ever used once
type Store struct {
	backend Backend
	policy  Policy
}

func NewStore(backend Backend, policy Policy) *Store {
	if policy == nil {
		policy = ExactMatch
	}

	return &Store{
		backend: backend,
		policy:  policy,
	}
}

// Restore returns the stored infos if they are compatible with shardCountHint, otherwise shardCountHint empty infos.
// The length of the returned slice is the shard count to run with.
// The stored record is always deleted afterwards, errors reading it only lose resumability and are logged.
func (s *Store) Restore(shardCountHint int) []Info {
	defer func() {
		if err := s.backend.Delete(); err != nil {
			logger.WithError(err).Error("failed deleting resume record")
		}
	}()

	stored, err := s.backend.Load()
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			logger.Debug("no resume record, starting fresh sessions")
		} else {
			logger.WithError(err).Warn("failed loading resume record, starting fresh sessions")
		}

		return Fresh(shardCountHint)
	}

	if len(stored) == 0 || !s.policy(len(stored), shardCountHint) {
		logger.Infof("resume record has %d shards, incompatible with the requested %d, starting fresh sessions", len(stored), shardCountHint)
		return Fresh(shardCountHint)
	}

	logger.Infof("restored resume info for %d shards", len(stored))
	return stored
}

// Save persists infos in shard order, doing nothing if none of them can be resumed
func (s *Store) Save(infos []Info) error {
	if AllEmpty(infos) {
		logger.Info("no resumable sessions, skipping save")
		return nil
	}

	err := s.backend.Save(infos)
	if err != nil {
		return errors.WithMessage(err, "save resume record")
	}

	logger.Infof("saved resume info for %d shards", len(infos))
	return nil
}

// Close releases the backend if it holds any resources
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
