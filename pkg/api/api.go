package api

import "encoding/json"

const (
	IndexPath     = "/"
	ChatPath      = "/gemini"
	SearchPath    = "/search"
	SearchAPIPath = "/api/search"
	LoginPath     = "/login"
	AdminPath     = "/admin"
	LogoutPath    = "/logout"
	SocketPath    = "/ws"
)

// Realtime event names. Inbound events are sent by browsers, outbound ones
// by the relay.
const (
	EventSendChatMessage    = "send_gemini_message"
	EventReceiveChatMessage = "receive_gemini_message"
	EventToggleDisco        = "toggle_disco_event"
	EventDiscoUpdate        = "disco_update"
	EventSendAdminMessage   = "send_admin_message_event"
	EventAdminBroadcast     = "admin_message_broadcast"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ChatMessage struct {
	Message string `json:"message"`
}

type ChatReply struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type DiscoToggle struct {
	Active bool `json:"active"`
}

type AdminMessage struct {
	Message string `json:"message"`
}

// Summary is the structured card generated for a search query. Its JSON
// schema is handed to the model, so the descriptions are prompts too.
type Summary struct {
	Summary          string   `json:"summary" jsonschema_description:"Short, dense summary of the answer (2-3 sentences)."`
	Facts            []string `json:"facts" jsonschema_description:"The three most important facts or key points about the query."`
	SourceConfidence string   `json:"source_confidence" jsonschema_description:"Confidence in the provided information: High, Medium or Low."`
}

type SearchResponse struct {
	Query      string   `json:"query"`
	Results    string   `json:"results"`
	SummaryRaw string   `json:"summary_raw"`
	Summary    *Summary `json:"summary,omitempty"`
	Domain     string   `json:"domain"`
}

// NewFrame marshals data into a frame for the given event.
func NewFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
