package main

import (
	"flag"
	"log"

	"github.com/gorgonia/hgan"
)

var (
	rnnType = flag.String("rnn", "hnn_phase_space", "dynamics model: gru or hnn_phase_space")
	iters   = flag.Int("iters", 200, "training iterations")
	batch   = flag.Int("batch", 16, "batch size")
	r1      = flag.Float64("r1", 10, "r1 gradient penalty weight (0 disables)")
	seed    = flag.Int64("seed", 1337, "rng seed")
	out     = flag.String("o", "", "checkpoint file to write when done")
)

func main() {
	flag.Parse()

	conf := hgan.DefaultConf()
	rnn, err := hgan.ParseRNNType(*rnnType)
	if err != nil {
		log.Fatal(err)
	}
	conf.RNNType = rnn
	conf.BatchSize = *batch
	conf.R1Gamma = float32(*r1)
	conf.Seed = *seed

	t, err := hgan.New(conf)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	src := hgan.NewSyntheticSource(conf.Nets, conf.Seed+100)
	if err := t.Learn(src, *iters); err != nil {
		log.Fatalf("%+v", err)
	}

	if *out != "" {
		if err := t.Save(*out); err != nil {
			log.Fatalf("%+v", err)
		}
		log.Printf("saved weights to %s", *out)
	}
}
