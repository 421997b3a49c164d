// Command secgame runs security-game analyses from the command line and mints
// API tokens.
//
//	secgame run -project p.yaml [-catalog path|url] [-json] [-db url] [-redis url]
//	secgame token -analyst id [-ttl 24h]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/secgame/api/internal/logger"
)

func main() {
	opts := logger.OptionsFromEnv()
	opts.Out = os.Stderr
	defer logger.Setup(opts)()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, os.Args[2:])
	case "token":
		err = tokenCmd(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		log.Error().Err(err).Msg("secgame failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  secgame run -project p.yaml [-catalog path|url] [-json] [-db url] [-redis url] [-workers n] [-seed n]
  secgame token -analyst id [-ttl 24h] [-secret s]`)
}
