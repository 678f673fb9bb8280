package relay

import (
	"strconv"
	"time"

	"github.com/botlabs-gg/dshardrelay/gateway"
	jsoniter "github.com/json-iterator/go"
	"github.com/karlseguin/ccache"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Role struct {
	ID          int64  `json:"id,string"`
	GuildID     int64  `json:"guild_id,string"`
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Position    int    `json:"position"`
	Permissions int64  `json:"permissions,string"`
	Hoist       bool   `json:"hoist"`
	Managed     bool   `json:"managed"`
	Mentionable bool   `json:"mentionable"`
}

// RoleCache keeps the roles seen in gateway events so workers can look them up by id
type RoleCache struct {
	cache *ccache.Cache
	ttl   time.Duration
}

func NewRoleCache(maxSize int64, ttl time.Duration) *RoleCache {
	return &RoleCache{
		cache: ccache.New(ccache.Configure().MaxSize(maxSize)),
		ttl:   ttl,
	}
}

type guildCreatePayload struct {
	ID    int64   `json:"id,string"`
	Roles []*Role `json:"roles"`
}

type guildRolePayload struct {
	GuildID int64 `json:"guild_id,string"`
	Role    *Role `json:"role"`
}

// Update applies an event to the cache, events that don't carry roles are ignored
func (rc *RoleCache) Update(evt *gateway.Event) {
	switch evt.Type {
	case gateway.EventTypeGuildCreate, gateway.EventTypeGuildUpdate:
		var g guildCreatePayload
		if err := json.Unmarshal(evt.Data, &g); err != nil {
			logger.WithError(err).Error("failed decoding guild roles")
			return
		}

		for _, r := range g.Roles {
			r.GuildID = g.ID
			rc.Set(r)
		}

	case gateway.EventTypeGuildRoleCreate, gateway.EventTypeGuildRoleUpdate:
		var p guildRolePayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.Role == nil {
			logger.WithError(err).Error("failed decoding guild role event")
			return
		}

		p.Role.GuildID = p.GuildID
		rc.Set(p.Role)

	case gateway.EventTypeGuildRoleDelete:
		id, err := evt.PeekID("role_id")
		if err != nil {
			logger.WithError(err).Error("failed reading role_id")
			return
		}

		rc.cache.Delete(roleKey(id))
	}
}

func (rc *RoleCache) Set(r *Role) {
	rc.cache.Set(roleKey(r.ID), r, rc.ttl)
}

func (rc *RoleCache) Role(id int64) (*Role, bool) {
	item := rc.cache.Get(roleKey(id))
	if item == nil || item.Expired() {
		return nil, false
	}

	return item.Value().(*Role), true
}

func (rc *RoleCache) Stop() {
	rc.cache.Stop()
}

func roleKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
