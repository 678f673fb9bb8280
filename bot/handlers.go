// Package bot holds the local event handlers run by standalone and worker processes
package bot

import (
	"context"

	"emperror.dev/errors"
	"github.com/botlabs-gg/dshardrelay/bot/eventsystem"
	"github.com/botlabs-gg/dshardrelay/common"
	"github.com/botlabs-gg/dshardrelay/gateway"
	"github.com/botlabs-gg/dshardrelay/relay"
	"github.com/buger/jsonparser"
)

var logger = common.GetFixedPrefixLogger("bot")

// RoleLookup resolves roles cached by the gateway, implemented by relay.RoleClient
type RoleLookup interface {
	Role(ctx context.Context, id int64) (*relay.Role, error)
}

// RegisterHandlers adds the handlers every process runs, roles can be nil when there is no gateway to ask
func RegisterHandlers(sys *eventsystem.System, roles RoleLookup) {
	sys.AddHandler("ready", handleReady, gateway.EventTypeReady)
	sys.AddHandler("interactions", handleInteractionCreate, gateway.EventTypeInteractionCreate)

	if roles == nil {
		return
	}

	if f, ok := roles.(roleForgetter); ok {
		sys.AddHandler("role_forget", roleForgetHandler(f), gateway.EventTypeGuildRoleUpdate, gateway.EventTypeGuildRoleDelete)
	}
	sys.AddHandler("role_lookup", roleLookupHandler(roles), gateway.EventTypeGuildRoleCreate, gateway.EventTypeGuildRoleUpdate)
}

func handleReady(evt *eventsystem.EventData) (retry bool, err error) {
	username, _ := jsonparser.GetString(evt.Data, "user", "username")
	guilds := 0
	jsonparser.ArrayEach(evt.Data, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		guilds++
	}, "guilds")

	logger.WithField("shard", evt.Shard).Infof("ready as %s with %d guilds", username, guilds)
	return false, nil
}

func handleInteractionCreate(evt *eventsystem.EventData) (retry bool, err error) {
	id, err := peekID(evt.Data, "id")
	if err != nil {
		return false, errors.WithMessage(err, "interaction id")
	}

	name, _ := jsonparser.GetString(evt.Data, "data", "name")
	logger.WithField("shard", evt.Shard).Debugf("interaction %d: %q", id, name)
	return false, nil
}

func roleLookupHandler(roles RoleLookup) eventsystem.HandlerFunc {
	return func(evt *eventsystem.EventData) (retry bool, err error) {
		id, err := peekID(evt.Data, "role", "id")
		if err != nil {
			return false, errors.WithMessage(err, "role id")
		}

		role, err := roles.Role(evt.Context(), id)
		if err != nil {
			// retried, the gateway may not have cached the role yet
			return true, errors.WithMessagef(err, "role %d", id)
		}

		logger.WithField("guild", role.GuildID).Debugf("role %d is now %q (position %d)", role.ID, role.Name, role.Position)
		return false, nil
	}
}

type roleForgetter interface {
	Forget(id int64)
}

func roleForgetHandler(f roleForgetter) eventsystem.HandlerFunc {
	return func(evt *eventsystem.EventData) (retry bool, err error) {
		id, err := peekID(evt.Data, "role", "id")
		if err != nil {
			// deletes only carry role_id
			id, err = peekID(evt.Data, "role_id")
		}
		if err != nil {
			return false, errors.WithMessage(err, "role id")
		}

		f.Forget(id)
		return false, nil
	}
}

func peekID(data []byte, keys ...string) (int64, error) {
	return (&gateway.Event{Data: data}).PeekID(keys...)
}
