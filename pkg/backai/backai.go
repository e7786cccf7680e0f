// multi-turn conversations with the upstream model

package backai

import (
	"context"
	"errors"
	"sync"

	"github.com/vasilisp/lingograph"
	"github.com/vasilisp/lingograph/openai"
	"github.com/vasilisp/searchai/internal/data"
	"github.com/vasilisp/searchai/internal/util"
)

var ErrNoReply = errors.New("no reply from model")

// Chats opens conversations that share one model and system prompt but keep
// separate histories.
type Chats struct {
	pipeline lingograph.Pipeline
}

func NewChats(apiKey string) *Chats {
	util.Assert(apiKey != "", "NewChats empty apiKey")

	model := openai.NewModel(openai.GPT4o, apiKey)
	actor := openai.NewActor(model, data.SystemPromptChat)

	return &Chats{pipeline: actor.Pipeline(nil, false, 3)}
}

// Conversation is one ordered dialogue. Turns are serialized so the history
// never interleaves two exchanges.
type Conversation struct {
	mu   sync.Mutex
	send func(message string) (string, error)
}

// Start allocates an empty history; it does not contact the model.
func (c *Chats) Start() *Conversation {
	util.Assert(c != nil, "Start nil Chats")

	chat := lingograph.NewSliceChat()
	pipeline := c.pipeline

	return &Conversation{send: func(message string) (string, error) {
		before := len(chat.History())

		err := lingograph.Chain(
			lingograph.UserPrompt(message, false),
			pipeline,
		).Execute(chat)
		if err != nil {
			return "", err
		}

		history := chat.History()
		if len(history) <= before {
			return "", ErrNoReply
		}

		return history[len(history)-1].Content, nil
	}}
}

func (c *Conversation) Send(ctx context.Context, message string) (string, error) {
	util.Assert(c != nil, "Send nil conversation")

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	return c.send(message)
}
