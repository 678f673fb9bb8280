package gateway

import (
	"sync"

	"github.com/botlabs-gg/dshardrelay/resume"
	"github.com/buger/jsonparser"
)

// sessionState holds what discordgo's session manager does not keep for us: the resume url and whether
// the session was dropped by a normal close that may still be in progress
type sessionState struct {
	mu        sync.Mutex
	resumeURL string
	discarded bool
}

// observe picks up the resume url sent with READY
func (s *sessionState) observe(t EventType, data []byte) {
	if t != EventTypeReady {
		return
	}

	u, err := jsonparser.GetString(data, "resume_gateway_url")
	if err != nil || u == "" {
		return
	}

	s.mu.Lock()
	s.resumeURL = u
	s.mu.Unlock()
}

func (s *sessionState) discard() {
	s.mu.Lock()
	s.discarded = true
	s.resumeURL = ""
	s.mu.Unlock()
}

// info builds the resume info from the manager's session id and sequence
func (s *sessionState) info(sessionID string, sequence int64) resume.Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discarded || sessionID == "" {
		return resume.Info{}
	}

	return resume.Info{
		ResumeURL: s.resumeURL,
		Session: &resume.Session{
			ID:       sessionID,
			Sequence: sequence,
		},
	}
}
