package main

import (
	"flag"
	"os"

	"github.com/hakimelghazi/liquidation-core/internal/logger"
	"github.com/hakimelghazi/liquidation-core/internal/scenario"
)

func main() {
	path := flag.String("scenario", "examples/scenario.yaml", "scenario file to replay")
	flag.Parse()

	log := logger.New()

	s, err := scenario.Load(*path)
	if err != nil {
		log.WithError(err).Fatal("cannot load scenario")
	}

	res, err := scenario.Run(s)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{"scenario": *path}).Fatal("scenario failed")
	}

	if err := scenario.Report(os.Stdout, s.Name, res); err != nil {
		log.WithError(err).Fatal("cannot write report")
	}
}
