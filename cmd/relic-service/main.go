package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/mycelian/relic-service/relicservice"
)

func main() {
	if err := relicservice.Run(); err != nil {
		log.Error().Err(err).Msg("relic service exited")
		os.Exit(1)
	}
}
