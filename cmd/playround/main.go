package main

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"playround/internal/api"
	"playround/internal/audio"
	"playround/internal/config"
	"playround/internal/journal"
	"playround/internal/logging"
	"playround/internal/network"
	"playround/internal/scene"
	"playround/internal/sim"
)

const version = "0.1.0"

const usage = `Play 'Round: a shared instrument for your local network.

Usage:
  playround <peer> [<listen-port>] [--http=<addr>] [--record=<wav>] [--journal=<path>] [--no-audio] [--debug]
  playround -h | --help
  playround --version

Arguments:
  <peer>            A peer to join, as host[:port]. The port defaults to 10101.
  <listen-port>     UDP port to listen on. Defaults to 10101.

Options:
  --http=<addr>     Serve the API and live feed on addr.
  --record=<wav>    Record the audio output to a WAV file.
  --journal=<path>  Append scene events to a JSON lines file.
  --no-audio        Do not run the audio output.
  --debug           Development logging at debug level.
  -h --help         Show this screen.
  --version         Show version.`

func main() {
	envErr := godotenv.Load(".env")

	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := config.Load()
	if err := applyArgs(&cfg, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := logging.Configure(cfg.Log.Development, cfg.Log.Level); err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if envErr != nil {
		logging.Debug("💡 no .env file found, using environment variables only")
	} else {
		logging.Info("✅ loaded environment from .env")
	}

	if err := run(cfg); err != nil {
		logging.Error("❌ playround failed", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
}

// applyArgs layers command-line arguments over the environment.
func applyArgs(cfg *config.AppConfig, opts docopt.Opts) error {
	peer, _ := opts.String("<peer>")
	cfg.Network.PeerHost = peer

	if v := opts["<listen-port>"]; v != nil {
		port, err := parsePort(v.(string))
		if err != nil {
			return err
		}
		cfg.Network.ListenPort = port
	}
	if v := opts["--http"]; v != nil {
		cfg.Server.Addr = v.(string)
		cfg.Server.Enabled = true
	}
	if v := opts["--record"]; v != nil {
		cfg.Audio.RecordPath = v.(string)
	}
	if v := opts["--journal"]; v != nil {
		cfg.Journal.Path = v.(string)
	}
	if noAudio, _ := opts.Bool("--no-audio"); noAudio {
		cfg.Audio.Enabled = false
	}
	if debug, _ := opts.Bool("--debug"); debug {
		cfg.Log.Development = true
		cfg.Log.Level = "debug"
	}
	return nil
}

func run(cfg config.AppConfig) error {
	logging.Info("🎸 ================================")
	logging.Info("🎸  PLAY 'ROUND")
	logging.Info("🎸 ================================")

	peer, err := resolvePeer(cfg.Network.PeerHost, cfg.Network.PeerPort)
	if err != nil {
		return err
	}

	// Sound sources and the scene that owns them
	bank := audio.NewBank()
	var seeds atomic.Int64
	seeds.Store(time.Now().UnixNano())
	voices := func(id string) audio.SoundSource {
		return audio.NewPluckedString(cfg.Audio.SampleRate, seeds.Add(1))
	}

	simCfg := cfg.Simulation
	sc := scene.New(scene.Config{
		JunctionRadius: simCfg.JunctionRadius,
		MarkerSpeed:    simCfg.MarkerSpeed,
		PluckTolerance: simCfg.PluckTolerance,
		HoverTolerance: simCfg.HoverTolerance,
		MaxMarkers:     simCfg.MaxMarkers,
	}, bank, voices)
	if _, err := sc.Seed(float64(simCfg.Width), float64(simCfg.Height)); err != nil {
		return fmt.Errorf("seed scene: %w", err)
	}

	// Network
	transport, err := network.ListenUDP(cfg.Network.ListenPort)
	if err != nil {
		return err
	}
	peers := network.NewPeerTable()
	proc := network.NewProcessor(sc, peers, transport, transport.LocalPort())
	proc.SetLocalAddrs(network.LocalAddrs())
	node := network.NewNode(network.NodeConfig{
		MessagesPerSecond: cfg.Network.MessagesPerSecond,
		Burst:             cfg.Network.Burst,
		CleanupInterval:   network.DefaultNodeConfig().CleanupInterval,
	}, transport, proc)

	// Journal
	jcfg := journal.DefaultConfig()
	jcfg.MaxEventsPerSec = cfg.Journal.MaxEventsPerSec
	jcfg.MaxEventsPerSource = cfg.Journal.MaxEventsPerSource
	jrnl := journal.New(jcfg)
	if err := jrnl.Start(cfg.Journal.Path); err != nil {
		logging.Warn("⚠️ journal file disabled", zap.Error(err))
		if err := jrnl.Start(""); err != nil {
			return err
		}
	} else if cfg.Journal.Path != "" {
		logging.Info("📝 journal", zap.String("path", cfg.Journal.Path))
	}

	// Simulation
	engine := sim.NewEngine(sc, bank, cfg.Simulation.FPS)

	// Audio
	var output *audio.Output
	if cfg.Audio.Enabled {
		output = audio.NewOutput(audio.OutputConfig{
			SampleRate: cfg.Audio.SampleRate,
			BufferSize: cfg.Audio.BufferSize,
		}, audio.WithVolume(audio.NewMixer(bank), cfg.Audio.Volume))
		if cfg.Audio.RecordPath != "" {
			rec, err := audio.NewWAVRecorder(cfg.Audio.RecordPath, cfg.Audio.SampleRate)
			if err != nil {
				logging.Warn("⚠️ recording disabled", zap.Error(err))
			} else {
				output.AddSink(rec)
				logging.Info("⏺️ recording", zap.String("path", cfg.Audio.RecordPath))
			}
		}
	}

	// HTTP API
	var server *api.Server
	stats := func() map[string]interface{} {
		out := map[string]interface{}{
			"engine":    engine.GetStats(),
			"scene":     sc.GetStats(),
			"processor": proc.GetStats(),
			"node":      node.GetStats(),
			"transport": transport.GetStats(),
			"sounds":    bank.GetStats(),
			"journal":   jrnl.GetStats(),
		}
		if output != nil {
			out["audio"] = output.GetStats()
		}
		if server != nil {
			out["http"] = server.GetStats()
		}
		return out
	}
	if cfg.Server.Enabled {
		server = api.NewServer(api.RouterConfig{
			Frames:  engine,
			Control: proc,
			Scene:   sc,
			Peers:   peers,
			Journal: jrnl,
			Stats:   stats,
			RateLimitConfig: &api.RateLimitConfig{
				RequestsPerSecond: cfg.Server.RequestsPerSecond,
				Burst:             cfg.Server.Burst,
			},
		})
	}

	publishPluck := func(ev scene.PluckEvent) {
		jrnl.Plucked(ev)
		if server != nil {
			server.PublishPluck(ev)
		}
	}
	wireCallbacks(proc, engine, jrnl, publishPluck)

	// Start everything
	node.Start()
	engine.Start()
	if output != nil {
		output.Start()
	}

	debugSrv := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       cfg.Observability.Enabled,
		ListenAddr:    cfg.Observability.Addr,
		AllowExternal: cfg.Observability.AllowExternal,
		BasicAuthUser: cfg.Observability.User,
		BasicAuthPass: cfg.Observability.Pass,
	})

	serverErr := make(chan error, 1)
	if server != nil {
		go func() { serverErr <- server.Start(cfg.Server.Addr) }()
	}

	if proc.AddPeer(peer) {
		logging.Info("🤝 joining", zap.String("peer", peer.String()))
	} else {
		logging.Warn("⚠️ peer is this process, waiting to be found", zap.String("peer", peer.String()))
	}
	proc.Announce()

	logging.Info("🎸 ready",
		zap.Int("udpPort", transport.LocalPort()),
		zap.Bool("audio", output != nil),
		zap.Bool("http", server != nil))

	// Wait for a signal or a dead API server
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logging.Info("🛑 shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logging.Error("❌ API server stopped", zap.Error(err))
		}
	}

	proc.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if server != nil {
		server.Stop(ctx)
	}
	if debugSrv != nil {
		if err := debugSrv.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
			logging.Warn("⚠️ debug server shutdown", zap.Error(err))
		}
	}
	engine.Stop()
	if output != nil {
		output.Stop()
	}
	node.Stop()
	jrnl.Stop()

	logging.Info("👋 bye")
	return nil
}

// wireCallbacks journals replication and simulation events and forwards
// plucks to the live feed.
func wireCallbacks(proc *network.Processor, engine *sim.Engine, jrnl *journal.Journal, publishPluck func(scene.PluckEvent)) {
	proc.OnPeerUp = func(addr netip.AddrPort) {
		jrnl.PeerUp(addr.String())
	}
	proc.OnPeerDown = func(addr netip.AddrPort) {
		jrnl.PeerDown(addr.String())
	}
	proc.OnCreate = func(rec scene.Record, origin network.Origin) {
		jrnl.Created(rec, string(origin))
	}
	proc.OnDelete = func(removed []string, origin network.Origin) {
		jrnl.Deleted(removed, string(origin))
	}
	proc.OnOrphan = func(rec scene.Record) {
		jrnl.OrphanParked(rec)
	}
	proc.OnResolve = func(rec scene.Record) {
		jrnl.OrphanResolved(rec)
	}
	proc.OnPluck = publishPluck

	engine.SetCallbacks(nil, publishPluck)
}
