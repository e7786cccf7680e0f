package data

import (
	"embed"
)

//go:embed prompts/listing.txt
var SystemPromptListing string

//go:embed prompts/summary.txt
var SystemPromptSummary string

//go:embed prompts/domain.txt
var SystemPromptDomain string

//go:embed prompts/chat.txt
var SystemPromptChat string

//go:embed templates/*.html
var Templates embed.FS

//go:embed static
var Static embed.FS
