// Command biomemap prints seeded biome sequences and renders them as PNGs.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"bikeadventure/internal/biome"
	"bikeadventure/internal/config"
	"bikeadventure/internal/game"
	"bikeadventure/internal/render"
)

func main() {
	var (
		start     = flag.String("start", "Countryside", "starting biome")
		n         = flag.Int("n", 20, "number of transitions")
		seed      = flag.Int64("seed", 12345, "random seed")
		alternate = flag.Bool("alternate", true, "alternate left and right choices")
		maxRun    = flag.Int("max-run", 3, "longest allowed run of one biome")
		strip     = flag.String("strip", "", "write the sequence as a PNG strip")
		rideOut   = flag.String("ride", "", "simulate a ride and write the streamed sections as a PNG")
		frames    = flag.Int("frames", 600, "frames to simulate with -ride")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[biomemap] ", log.LstdFlags)

	b, err := biome.ParseBiome(*start)
	if err != nil || !b.Valid() {
		logger.Fatalf("bad -start %q", *start)
	}

	model := biome.DefaultModel()
	seq := model.GenerateSequence(rand.New(rand.NewSource(*seed)), b, *n, *alternate)

	names := make([]string, len(seq))
	for i, s := range seq {
		names[i] = s.String()
	}
	fmt.Println(strings.Join(names, " -> "))
	if err := model.ValidateSequence(seq, *maxRun); err != nil {
		fmt.Printf("invalid: %v\n", err)
	} else {
		fmt.Printf("valid: %d biomes, no run longer than %d\n", len(seq), *maxRun)
	}

	if *strip != "" {
		if err := render.WritePNG(*strip, render.SequenceStrip(seq, 32)); err != nil {
			logger.Fatalf("strip: %v", err)
		}
	}

	if *rideOut != "" {
		cfg := config.Defaults()
		cfg.World.Seed = *seed
		cfg.World.StartBiome = b.String()
		cfg.Streaming.Workers = 0
		cfg.Normalize()

		sess := game.NewSession(cfg, game.WithLogger(logger))
		r := game.NewRider(cfg.World.RiderSpeed, game.Alternate, *seed)
		dt := time.Second / time.Duration(cfg.Performance.TargetFPS)
		for i := 0; i < *frames; i++ {
			r.Step(sess, dt)
		}
		img := render.BiomeMap(sess.Streaming().ActiveSections(), render.MapOptions{Labels: true})
		sess.Close()
		if err := render.WritePNG(*rideOut, img); err != nil {
			logger.Fatalf("ride: %v", err)
		}
		fmt.Printf("rode %.0f units, %d choices\n", r.Pos.X(), sess.History().TotalChoices)
	}
}
