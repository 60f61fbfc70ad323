// Command erpctl administers the system and tenant databases.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("erpctl failed")
		os.Exit(1)
	}
}
