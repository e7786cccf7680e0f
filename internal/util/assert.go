package util

import "github.com/rs/zerolog/log"

// Assert aborts the process with the given message if the condition is false
func Assert(condition bool, msg string) {
	if !condition {
		log.Fatal().Msgf("Assertion failed: %s", msg)
	}
}
