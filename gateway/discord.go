package gateway

import (
	"context"
	"sync"

	"emperror.dev/errors"
	"github.com/botlabs-gg/dshardrelay/common"
	"github.com/botlabs-gg/dshardrelay/resume"
	"github.com/jonas747/discordgo/v2"
	"github.com/sirupsen/logrus"
)

var logger = common.GetFixedPrefixLogger("gateway")

var ErrDisconnected = errors.NewPlain("gateway connection lost, reconnecting")

// MessageBuffer is how many messages a discord connection buffers before the reader blocks
const MessageBuffer = 1000

// DefaultIntents covers the events we relay, roles are part of the guilds intent
var DefaultIntents = []discordgo.GatewayIntent{
	discordgo.GatewayIntentGuilds,
	discordgo.GatewayIntentGuildMessages,
}

// DiscordDialer opens discordgo gateway sessions
type DiscordDialer struct {
	Token    string
	Intents  []discordgo.GatewayIntent
	LogLevel int
}

// Dial implements DialFunc
func (d *DiscordDialer) Dial(ctx context.Context, shard ShardID, info resume.Info) (Conn, error) {
	session, err := discordgo.New(d.Token)
	if err != nil {
		return nil, errors.WithMessage(err, "discordgo.New")
	}

	session.ShardID = shard.Number
	session.ShardCount = shard.Total
	session.Intents = d.Intents
	session.StateEnabled = false
	session.SyncEvents = true
	session.LogLevel = d.LogLevel

	conn := &discordConn{
		id:       shard,
		session:  session,
		messages: make(chan Message, MessageBuffer),
		logger:   logger.WithField("shard", shard.Number),
	}

	if !info.IsEmpty() && info.Session != nil {
		// discordgo resumes through its own gateway url, ours is carried along so it survives the next save
		session.GatewayManager.SetSessionInfo(info.Session.ID, info.Session.Sequence)
		conn.state.resumeURL = info.ResumeURL
	}

	session.AddHandler(conn.handleEvent)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = session.GatewayManager.Open()
	if err != nil {
		return nil, errors.WithMessage(err, "open")
	}

	conn.logger.Info("gateway connection opened")
	return conn, nil
}

type discordConn struct {
	id       ShardID
	session  *discordgo.Session
	logger   *logrus.Entry
	messages chan Message
	state    sessionState

	// guards sends on messages and closing it
	mu        sync.Mutex
	finished  bool
	closeOnce sync.Once
}

func (c *discordConn) ShardID() ShardID {
	return c.id
}

func (c *discordConn) Messages() <-chan Message {
	return c.messages
}

func (c *discordConn) Close(code CloseCode) {
	if code == CloseNormal {
		// the manager only forgets the session once the close is done
		c.state.discard()
	}

	c.closeOnce.Do(func() {
		go c.close(code)
	})
}

func (c *discordConn) close(code CloseCode) {
	c.logger.Infof("closing gateway connection (%s)", code)

	// blocks until discord closed the connection or 5 seconds passed, the session info is kept on the manager
	err := c.session.GatewayManager.Close()
	if err != nil {
		c.emit(Message{Err: errors.WithMessage(err, "close")})
	}

	if code == CloseNormal {
		c.session.GatewayManager.SetSessionInfo("", 0)
	}

	c.mu.Lock()
	c.finished = true
	c.messages <- Message{Closed: true}
	close(c.messages)
	c.mu.Unlock()
}

func (c *discordConn) ResumeInfo() resume.Info {
	sessionID, sequence := c.session.GatewayManager.GetSessionInfo()
	return c.state.info(sessionID, sequence)
}

func (c *discordConn) emit(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}

	c.messages <- m
}

func (c *discordConn) handleEvent(s *discordgo.Session, evt interface{}) {
	if _, ok := evt.(*discordgo.Disconnect); ok {
		c.emit(Message{Err: ErrDisconnected})
		return
	}

	t, ok := discordEventType(evt)
	if !ok {
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		c.emit(Message{Err: errors.WithMessagef(err, "marshal %s", t)})
		return
	}

	c.state.observe(t, data)
	c.emit(Message{Event: &Event{Type: t, Data: data}})
}

func discordEventType(evt interface{}) (EventType, bool) {
	switch evt.(type) {
	case *discordgo.Ready:
		return EventTypeReady, true
	case *discordgo.Resumed:
		return EventTypeResumed, true
	case *discordgo.GuildCreate:
		return EventTypeGuildCreate, true
	case *discordgo.GuildUpdate:
		return EventTypeGuildUpdate, true
	case *discordgo.GuildDelete:
		return EventTypeGuildDelete, true
	case *discordgo.GuildRoleCreate:
		return EventTypeGuildRoleCreate, true
	case *discordgo.GuildRoleUpdate:
		return EventTypeGuildRoleUpdate, true
	case *discordgo.GuildRoleDelete:
		return EventTypeGuildRoleDelete, true
	case *discordgo.GuildMemberAdd:
		return EventTypeGuildMemberAdd, true
	case *discordgo.GuildMemberUpdate:
		return EventTypeGuildMemberUpdate, true
	case *discordgo.GuildMemberRemove:
		return EventTypeGuildMemberRemove, true
	case *discordgo.ChannelCreate:
		return EventTypeChannelCreate, true
	case *discordgo.ChannelUpdate:
		return EventTypeChannelUpdate, true
	case *discordgo.ChannelDelete:
		return EventTypeChannelDelete, true
	case *discordgo.MessageCreate:
		return EventTypeMessageCreate, true
	case *discordgo.MessageUpdate:
		return EventTypeMessageUpdate, true
	case *discordgo.MessageDelete:
		return EventTypeMessageDelete, true
	case *discordgo.InteractionCreate:
		return EventTypeInteractionCreate, true
	}

	return 0, false
}

// RecommendedShards asks discord how many shards the bot should run with
func RecommendedShards(token string) (int, error) {
	s, err := discordgo.New(token)
	if err != nil {
		return 0, errors.WithMessage(err, "discordgo.New")
	}

	resp, err := s.GatewayBot()
	if err != nil {
		return 0, errors.WithMessage(err, "GatewayBot")
	}

	if resp.Shards < 1 {
		return 1, nil
	}

	return resp.Shards, nil
}
