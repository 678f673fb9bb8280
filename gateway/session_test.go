package gateway

import (
	"testing"

	"github.com/botlabs-gg/dshardrelay/resume"
	"github.com/stretchr/testify/assert"
)

func TestSessionStateKeepsSeedURL(t *testing.T) {
	s := &sessionState{resumeURL: "wss://seed.gateway"}

	// resumed sessions get RESUMED, never READY, the seeded url must survive
	s.observe(EventTypeResumed, []byte(`{}`))
	assert.Equal(t, resume.Info{
		ResumeURL: "wss://seed.gateway",
		Session:   &resume.Session{ID: "abc", Sequence: 7},
	}, s.info("abc", 7))
}

func TestSessionStateReadyURL(t *testing.T) {
	s := &sessionState{resumeURL: "wss://seed.gateway"}

	s.observe(EventTypeReady, []byte(`{"session_id":"new","resume_gateway_url":"wss://ready.gateway"}`))
	assert.Equal(t, "wss://ready.gateway", s.info("new", 1).ResumeURL)

	// a READY without the field keeps what we had
	s.observe(EventTypeReady, []byte(`{"session_id":"new"}`))
	assert.Equal(t, "wss://ready.gateway", s.info("new", 1).ResumeURL)
}

func TestSessionStateDiscard(t *testing.T) {
	s := &sessionState{resumeURL: "wss://seed.gateway"}
	assert.True(t, s.info("", 3).IsEmpty())

	s.discard()
	assert.Equal(t, resume.Info{}, s.info("abc", 7), "a normally closed session is never resumable")
}
