package main

import (
	"log"

	"github.com/podded/dashgate/config"
	"github.com/podded/dashgate/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalln(err)
	}

	svr, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalln(err)
	}

	log.Fatalln(svr.RunServer())
}
