package gateway

import (
	"strings"

	"emperror.dev/errors"
	"github.com/buger/jsonparser"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventType is one of the gateway dispatch events we know how to handle
type EventType int

const (
	EventTypeReady EventType = iota
	EventTypeResumed
	EventTypeGuildCreate
	EventTypeGuildUpdate
	EventTypeGuildDelete
	EventTypeGuildRoleCreate
	EventTypeGuildRoleUpdate
	EventTypeGuildRoleDelete
	EventTypeGuildMemberAdd
	EventTypeGuildMemberUpdate
	EventTypeGuildMemberRemove
	EventTypeChannelCreate
	EventTypeChannelUpdate
	EventTypeChannelDelete
	EventTypeMessageCreate
	EventTypeMessageUpdate
	EventTypeMessageDelete
	EventTypeInteractionCreate

	numEventTypes
)

var eventNames = [numEventTypes]string{
	EventTypeReady:             "READY",
	EventTypeResumed:           "RESUMED",
	EventTypeGuildCreate:       "GUILD_CREATE",
	EventTypeGuildUpdate:       "GUILD_UPDATE",
	EventTypeGuildDelete:       "GUILD_DELETE",
	EventTypeGuildRoleCreate:   "GUILD_ROLE_CREATE",
	EventTypeGuildRoleUpdate:   "GUILD_ROLE_UPDATE",
	EventTypeGuildRoleDelete:   "GUILD_ROLE_DELETE",
	EventTypeGuildMemberAdd:    "GUILD_MEMBER_ADD",
	EventTypeGuildMemberUpdate: "GUILD_MEMBER_UPDATE",
	EventTypeGuildMemberRemove: "GUILD_MEMBER_REMOVE",
	EventTypeChannelCreate:     "CHANNEL_CREATE",
	EventTypeChannelUpdate:     "CHANNEL_UPDATE",
	EventTypeChannelDelete:     "CHANNEL_DELETE",
	EventTypeMessageCreate:     "MESSAGE_CREATE",
	EventTypeMessageUpdate:     "MESSAGE_UPDATE",
	EventTypeMessageDelete:     "MESSAGE_DELETE",
	EventTypeInteractionCreate: "INTERACTION_CREATE",
}

var eventsByName = func() map[string]EventType {
	m := make(map[string]EventType, numEventTypes)
	for i, name := range eventNames {
		m[name] = EventType(i)
	}
	return m
}()

func (e EventType) String() string {
	if e < 0 || e >= numEventTypes {
		return "UNKNOWN"
	}

	return eventNames[e]
}

// AllEventTypes returns every known event type in declaration order
func AllEventTypes() []EventType {
	out := make([]EventType, numEventTypes)
	for i := range out {
		out[i] = EventType(i)
	}
	return out
}

var ErrUnknownEvent = errors.NewPlain("unknown event type")

func ParseEventType(name string) (EventType, error) {
	if t, ok := eventsByName[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return t, nil
	}

	return 0, errors.WithMessage(ErrUnknownEvent, name)
}

// EventTypeFlags is a set of event types
type EventTypeFlags uint64

func NewEventTypeFlags(types ...EventType) EventTypeFlags {
	var f EventTypeFlags
	for _, t := range types {
		f |= 1 << uint(t)
	}
	return f
}

func (f EventTypeFlags) Contains(t EventType) bool {
	return f&(1<<uint(t)) != 0
}

// ParseEventTypeFlags parses a comma separated list of event names
func ParseEventTypeFlags(list string) (EventTypeFlags, error) {
	var f EventTypeFlags
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}

		t, err := ParseEventType(name)
		if err != nil {
			return 0, err
		}
		f |= NewEventTypeFlags(t)
	}

	return f, nil
}

// Event is a single dispatch event, Data is the raw json payload ("d" in the gateway frame)
type Event struct {
	Type EventType
	Data []byte
}

type frame struct {
	Op   int                 `json:"op"`
	Type string              `json:"t"`
	Data jsoniter.RawMessage `json:"d"`
}

// MarshalFrame encodes the event as a gateway dispatch frame
func (e *Event) MarshalFrame() ([]byte, error) {
	data := e.Data
	if len(data) == 0 {
		data = []byte("null")
	}

	return json.Marshal(&frame{
		Op:   0,
		Type: e.Type.String(),
		Data: data,
	})
}

// ParseFrame decodes a dispatch frame, the payload is not decoded
func ParseFrame(b []byte) (*Event, error) {
	op, err := jsonparser.GetInt(b, "op")
	if err != nil {
		return nil, errors.WithMessage(err, "op")
	}

	if op != 0 {
		return nil, errors.Errorf("not a dispatch frame, op %d", op)
	}

	name, err := jsonparser.GetString(b, "t")
	if err != nil {
		return nil, errors.WithMessage(err, "t")
	}

	t, err := ParseEventType(name)
	if err != nil {
		return nil, err
	}

	data, _, _, err := jsonparser.Get(b, "d")
	if err != nil {
		return nil, errors.WithMessage(err, "d")
	}

	// jsonparser returns a slice into b
	cop := make([]byte, len(data))
	copy(cop, data)

	return &Event{Type: t, Data: cop}, nil
}

// PeekID reads a snowflake id at the given path in the payload, snowflakes are sent as strings
func (e *Event) PeekID(keys ...string) (int64, error) {
	v, dataType, _, err := jsonparser.Get(e.Data, keys...)
	if err != nil {
		return 0, err
	}

	if dataType == jsonparser.String || dataType == jsonparser.Number {
		return jsonparser.ParseInt(v)
	}

	return 0, errors.Errorf("unexpected value type %v for id", dataType)
}
