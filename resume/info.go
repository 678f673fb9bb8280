package resume

// Session is the opaque part of a resume token handed out by the gateway connection
type Session struct {
	ID       string `json:"id" msgpack:"id"`
	Sequence int64  `json:"sequence" msgpack:"sequence"`
}

// Info is everything needed to resume a shard's gateway session in a new connection
type Info struct {
	ResumeURL string   `json:"resume_url,omitempty" msgpack:"resume_url,omitempty"`
	Session   *Session `json:"session,omitempty" msgpack:"session,omitempty"`
}

func (i Info) IsEmpty() bool {
	return i.ResumeURL == "" && i.Session == nil
}

// AllEmpty returns true if none of the infos can be used to resume
func AllEmpty(infos []Info) bool {
	for _, v := range infos {
		if !v.IsEmpty() {
			return false
		}
	}

	return true
}

// Fresh returns n empty infos
func Fresh(n int) []Info {
	return make([]Info, n)
}
