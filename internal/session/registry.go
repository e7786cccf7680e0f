// Package session keeps one upstream conversation per live realtime
// connection.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vasilisp/searchai/internal/metrics"
	"github.com/vasilisp/searchai/internal/util"
)

// Conversation is a multi-turn dialogue held by the upstream model.
type Conversation interface {
	Send(ctx context.Context, message string) (string, error)
}

// Starter opens fresh conversations. StartConversation must not block on
// the network: it is called with the registry lock held.
type Starter interface {
	StartConversation() Conversation
}

type StarterFunc func() Conversation

func (f StarterFunc) StartConversation() Conversation {
	return f()
}

type ReplyKind int

const (
	ReplyOK ReplyKind = iota
	ReplyNoSession
	ReplyError
)

const (
	UserAssistant = "Assistant"
	UserSystem    = "System"
	UserError     = "Error"

	NoSessionText = "Error: chat session not found."
)

// Reply is what a chat message turns into, success or not.
type Reply struct {
	Kind ReplyKind
	User string
	Text string
}

func (r Reply) String() string {
	return fmt.Sprintf("%s: %s", r.User, r.Text)
}

type Registry struct {
	mu       sync.Mutex
	starter  Starter
	sessions map[string]Conversation
}

func NewRegistry(starter Starter) *Registry {
	util.Assert(starter != nil, "NewRegistry nil starter")

	return &Registry{
		starter:  starter,
		sessions: make(map[string]Conversation),
	}
}

// OnConnect opens a conversation for connID unless one already exists.
// It reports whether a new conversation was created.
func (r *Registry) OnConnect(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; ok {
		log.Warn().Str("component", "session").Str("conn_id", connID).Msg("duplicate connect, keeping existing conversation")
		return false
	}

	conv := r.starter.StartConversation()
	util.Assert(conv != nil, "OnConnect nil conversation")
	r.sessions[connID] = conv
	metrics.ChatSessions.Set(float64(len(r.sessions)))

	log.Debug().Str("component", "session").Str("conn_id", connID).Msg("conversation opened")
	return true
}

// OnDisconnect drops the conversation for connID. Unknown ids are ignored.
func (r *Registry) OnDisconnect(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; !ok {
		return false
	}

	delete(r.sessions, connID)
	metrics.ChatSessions.Set(float64(len(r.sessions)))

	log.Debug().Str("component", "session").Str("conn_id", connID).Msg("conversation closed")
	return true
}

func (r *Registry) lookup(connID string) (Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.sessions[connID]
	return conv, ok
}

// OnMessage forwards message to the conversation of connID. Upstream errors
// come back as an error reply; they never escape.
func (r *Registry) OnMessage(ctx context.Context, connID string, message string) Reply {
	conv, ok := r.lookup(connID)
	if !ok || strings.TrimSpace(message) == "" {
		return Reply{Kind: ReplyNoSession, User: UserSystem, Text: NoSessionText}
	}

	// the lock is released here; a slow upstream only stalls this connection
	text, err := conv.Send(ctx, message)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("chat", "error").Inc()
		log.Warn().Err(err).Str("component", "session").Str("conn_id", connID).Msg("upstream chat failed")
		return Reply{Kind: ReplyError, User: UserError, Text: fmt.Sprintf("An API error occurred: %v", err)}
	}

	metrics.UpstreamCalls.WithLabelValues("chat", "ok").Inc()
	return Reply{Kind: ReplyOK, User: UserAssistant, Text: text}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
