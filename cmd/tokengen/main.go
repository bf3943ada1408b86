// Command tokengen mints a bearer token accepted by the relay's
// websocket handshake. Meant for development and manual testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hallchat/relay/internal/auth"
	"github.com/hallchat/relay/internal/config"
	"github.com/hallchat/relay/internal/domain"
)

func main() {
	user := flag.String("user", "", "user id to embed in the token")
	name := flag.String("name", "", "display name to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *user == "" || *name == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	token, err := auth.GenerateToken(cfg.Secret, domain.Identity{
		UserID:   domain.UserID(*user),
		UserName: *name,
	}, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}
	fmt.Println(token)
}
