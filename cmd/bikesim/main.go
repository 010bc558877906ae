// Command bikesim runs a headless ride through the generated world.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"bikeadventure/internal/config"
	"bikeadventure/internal/events"
	"bikeadventure/internal/feed"
	"bikeadventure/internal/game"
	"bikeadventure/internal/journal"
	"bikeadventure/internal/personality"
	"bikeadventure/internal/profiling"
	"bikeadventure/internal/render"
	"bikeadventure/internal/store"

	"github.com/google/uuid"
	"github.com/xlab/closer"
)

func main() {
	var (
		cfgPath  = flag.String("config", "", "path to a YAML config (defaults when empty)")
		frames   = flag.Int("frames", 3600, "frames to simulate, 0 runs until interrupted")
		seed     = flag.Int64("seed", 0, "world seed override")
		dataDir  = flag.String("data", "", "directory for the journal and history database")
		feedAddr = flag.String("feed", "", "serve the event feed on this address")
		session  = flag.String("session", "", "resume a saved session id, or \"latest\"")
		mode     = flag.String("mode", "alternate", "rider choices: alternate, random, left or right")
		fps      = flag.Int("fps", -1, "frame pacing, -1 uses the config target, 0 runs unpaced")
		mapOut   = flag.String("map", "", "write a PNG of the final streamed sections")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bikesim] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *seed != 0 {
		cfg.World.Seed = *seed
	}
	if *dataDir != "" {
		cfg.Journal.Dir = filepath.Join(*dataDir, "journal")
		cfg.Store.Path = filepath.Join(*dataDir, "history.sqlite")
	}
	if *feedAddr != "" {
		cfg.Feed.Addr = *feedAddr
	}
	cfg.Normalize()

	choiceMode, ok := game.ParseChoiceMode(*mode)
	if !ok {
		logger.Fatalf("unknown -mode %q", *mode)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	id, history, err := restore(db, *session)
	if err != nil {
		_ = db.Close()
		logger.Fatalf("restore session: %v", err)
	}
	logger.Printf("session %s (%d prior choices)", id, history.TotalChoices)

	ctx, cancel := context.WithCancel(context.Background())
	bus := events.NewBus()
	prof := profiling.New()

	var jr *journal.Journal
	if cfg.Journal.Enabled {
		jr = journal.New(cfg.Journal.Dir, id.String(), bus, logger)
		go jr.Run(ctx)
	}

	gen := &game.SceneGenerator{}
	sess := game.NewSession(cfg,
		game.WithID(id),
		game.WithBus(bus),
		game.WithLogger(logger),
		game.WithProfiler(prof),
		game.WithHistory(history),
		game.WithGenerator(gen),
	)

	if cfg.Feed.Addr != "" {
		srv := feed.NewServer(bus, sess, id.String(), logger)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Feed.Addr); err != nil {
				logger.Printf("feed: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	closer.Bind(func() {
		cancel()
		<-done
		if *mapOut != "" {
			img := render.BiomeMap(sess.Streaming().ActiveSections(), render.MapOptions{Labels: true})
			if err := render.WritePNG(*mapOut, img); err != nil {
				logger.Printf("map: %v", err)
			}
		}
		sess.Close()
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer saveCancel()
		if err := db.Save(saveCtx, id, sess.History()); err != nil {
			logger.Printf("save history: %v", err)
		}
		if jr != nil {
			if err := jr.Close(); err != nil {
				logger.Printf("journal: %v", err)
			}
		}
		_ = db.Close()
		logger.Printf("ride over: %d frames, %d live content handles, %d dropped events",
			sess.Frame(), gen.Live(), bus.Dropped())
	})

	limit := cfg.Performance.TargetFPS
	if *fps >= 0 {
		limit = *fps
	}
	go func() {
		defer close(done)
		ride(ctx, sess, game.NewRider(cfg.World.RiderSpeed, choiceMode, cfg.World.Seed), game.NewFPSLimiter(limit), prof, logger, *frames)
		if ctx.Err() == nil {
			// Finished on its own; closer runs the cleanup and exits.
			go closer.Close()
		}
	}()
	closer.Hold()
}

func ride(ctx context.Context, sess *game.Session, r *game.Rider, limiter *game.FPSLimiter, prof *profiling.Profiler, logger *log.Logger, frames int) {
	report := max(limiter.Limit(), 60) * 5
	last := time.Now()
	for i := 0; frames == 0 || i < frames; i++ {
		if ctx.Err() != nil {
			return
		}
		now := time.Now()
		dt := now.Sub(last)
		last = now

		start := time.Now()
		if c, ok := r.Step(sess, dt); ok {
			side := "right"
			if c.Left {
				side = "left"
			}
			logger.Printf("took the %s path at %v into %s", side, c.Coord, c.Chosen)
		}
		if took := time.Since(start); took > 16*time.Millisecond {
			logger.Printf("Slow frame: %v. Top tasks: %s", took, prof.TopN(5))
		}
		if (i+1)%report == 0 {
			m := sess.FeedMetrics()
			logger.Printf("frame %d at x=%.0f: %d sections (%.0f KB), lod %d, bias %.2f, avg %.1fms, left ratio %.2f",
				m.Frame, r.Pos.X(), m.Streaming.LoadedSections, m.Streaming.TotalMemoryKB,
				m.Performance.LODLevel, m.Performance.LODBias, m.Performance.AvgFrameTimeMs, m.LeftRatio)
		}
		limiter.Wait()
	}
}

func restore(db *store.Store, session string) (uuid.UUID, *personality.History, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	switch session {
	case "":
		return uuid.New(), personality.NewHistory(), nil
	case "latest":
		id, h, err := db.Latest(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return uuid.New(), personality.NewHistory(), nil
		}
		return id, h, err
	}
	id, err := uuid.Parse(session)
	if err != nil {
		return uuid.Nil, nil, err
	}
	h, err := db.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return id, personality.NewHistory(), nil
	}
	return id, h, err
}
