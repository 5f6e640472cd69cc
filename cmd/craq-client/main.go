// Command craq-client is a small interactive-ish demo of craqrouter: it
// issues one SET (when -val is given) and one GET against a chain given as
// a flag, the way
// craq_cluster.py's CraqClient was exercised in the reference system.
package main

import (
	"flag"
	"os"
	"strings"

	"github.com/vedant-sharmaa/projects/corelog"
	"github.com/vedant-sharmaa/projects/craqrouter"
	"github.com/vedant-sharmaa/projects/transport"
)

func main() {
	addrsFlag := flag.String("addrs", "", "comma-separated replica addresses, head first")
	key := flag.String("key", "", "key to SET and GET")
	val := flag.String("val", "", "value to SET before GETting")
	flag.Parse()

	log := corelog.Component("craq-client")

	if *addrsFlag == "" || *key == "" {
		log.Error().Msg("usage: craq-client -addrs h:p,h:p,... -key K [-val V]")
		os.Exit(1)
	}

	router, err := craqrouter.Dial(transport.JSONRPC{}, strings.Split(*addrsFlag, ","))
	if err != nil {
		log.Error().Err(err).Msg("dial")
		os.Exit(1)
	}
	defer router.Close()

	if *val != "" {
		if err := router.Set(*key, *val); err != nil {
			log.Error().Err(err).Msg("set")
			os.Exit(1)
		}
		log.Info().Str("key", *key).Str("val", *val).Msg("set ok")
	}

	got, err := router.Get(*key)
	if err != nil {
		log.Error().Err(err).Msg("get")
		os.Exit(1)
	}
	log.Info().Str("key", *key).Str("val", got).Msg("get ok")
}
