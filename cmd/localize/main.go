// Command localize matches range scans against an occupancy map and
// publishes a score for every matched scan.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/banshee-data/localize/internal/config"
	"github.com/banshee-data/localize/internal/localize/frames"
	"github.com/banshee-data/localize/internal/localize/geom"
	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/laser"
	"github.com/banshee-data/localize/internal/localize/matcher"
	"github.com/banshee-data/localize/internal/localize/monitor"
	"github.com/banshee-data/localize/internal/localize/pipeline"
	"github.com/banshee-data/localize/internal/localize/rpc"
	"github.com/banshee-data/localize/internal/localize/source"
	"github.com/banshee-data/localize/internal/localize/store"
	"github.com/banshee-data/localize/internal/monitoring"
	"github.com/banshee-data/localize/internal/serialmux"
	"github.com/banshee-data/localize/internal/version"
)

type options struct {
	configPath   string
	dbPath       string
	listen       string
	grpcListen   string
	mapAddr      string
	serialPort   string
	serialBaud   int
	serialInit   string
	udpPort      int
	pcapFile     string
	pcapPort     int
	pcapRealtime bool
}

func parseFlags(fs *flag.FlagSet, args []string) (options, bool, error) {
	var o options
	fs.StringVar(&o.configPath, "config", "", "Path to a JSON localization config (defaults apply when empty)")
	fs.StringVar(&o.dbPath, "db", "localize.db", "SQLite match history (empty disables)")
	fs.StringVar(&o.listen, "listen", ":8090", "HTTP monitor listen address")
	fs.StringVar(&o.grpcListen, "grpc-listen", ":50061", "gRPC score stream listen address (empty disables)")
	fs.StringVar(&o.mapAddr, "map-addr", "localhost:50062", "Map server address used when use_map_topic is false")
	fs.StringVar(&o.serialPort, "serial", "", "Serial device carrying envelope lines")
	fs.IntVar(&o.serialBaud, "serial-baud", serialmux.DefaultBaudRate, "Serial baud rate")
	fs.StringVar(&o.serialInit, "serial-init", "", "Comma separated commands sent to the serial bridge on start")
	fs.IntVar(&o.udpPort, "udp-port", 0, "UDP port receiving envelope datagrams (0 disables)")
	fs.StringVar(&o.pcapFile, "pcap", "", "Replay envelope datagrams from a pcap file")
	fs.IntVar(&o.pcapPort, "pcap-port", 0, "Only replay datagrams sent to this UDP port (0 keeps all)")
	fs.BoolVar(&o.pcapRealtime, "pcap-realtime", false, "Pace pcap replay by capture timestamps")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, false, err
	}
	if o.serialPort == "" && o.udpPort == 0 && o.pcapFile == "" {
		monitoring.Warnf("[node] no scan source configured; only the monitor will run")
	}
	return o, *showVersion, nil
}

func main() {
	opts, showVersion, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if showVersion {
		fmt.Println(version.String("localize"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitoring.Logf("[node] starting %s", version.String("localize"))
	if _, err := run(ctx, opts); err != nil {
		monitoring.Errorf("[node] %v", err)
		os.Exit(1)
	}
	monitoring.Logf("[node] graceful shutdown complete")
}

// result is what run reports after shutdown.
type result struct {
	Stats   pipeline.Stats
	Session string
}

func loadConfig(path string) (*config.LocalizeConfig, error) {
	if path == "" {
		return config.EmptyConfig(), nil
	}
	return config.LoadConfig(path)
}

// run wires the node and blocks until ctx is cancelled or every finite
// source (a pcap replay) has been drained.
func run(parent context.Context, o options) (result, error) {
	var res result
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return res, err
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var st *store.Store
	if o.dbPath != "" {
		if st, err = store.Open(o.dbPath); err != nil {
			return res, fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		res.Session = st.Session()
	}

	// Frame tree: configured mounts; the node adds map->odom below.
	transforms := frames.NewBuffer(cfg.GetTransformCache(), cfg.GetTransformTolerance())
	if err := transforms.LoadStatic(cfg.StaticTransforms); err != nil {
		return res, fmt.Errorf("static transforms: %w", err)
	}
	poses := frames.NewPoseResolver(transforms, cfg.GetMapFrame())

	metrics := monitor.NewMetrics()
	history := monitor.NewScoreHistory(0)
	broadcaster := rpc.NewScoreBroadcaster()
	broadcaster.Start()
	defer broadcaster.Stop()

	publishers := pipeline.MultiPublisher{history, broadcaster}
	if st != nil {
		publishers = append(publishers, st)
	}

	handle := &pipeline.GridHandle{}
	ingestor, err := pipeline.NewIngestor(pipeline.IngestorConfig{
		Handle:       handle,
		Factory:      matcher.NewCorrelativeFactory,
		Params:       matcher.ParamsFromConfig(cfg),
		FirstMapOnly: cfg.GetFirstMapOnly(),
		RetryDelay:   cfg.GetMapRetryDelay(),
		OnMap: func(m grid.OccupancyMap, g *grid.CorrelationGrid) {
			metrics.ObserveMapBuild()
			if st == nil {
				return
			}
			if err := st.RecordMap(m, g); err != nil {
				monitoring.Warnf("[store] record map: %v", err)
			}
		},
	})
	if err != nil {
		return res, err
	}
	orchestrator, err := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Registry:  laser.NewRegistry(),
		Resolver:  poses,
		Handle:    handle,
		Throttle:  cfg.GetThrottleScans(),
		Publisher: publishers,
		Observer:  metrics,
	})
	if err != nil {
		return res, err
	}
	node := &pipeline.Node{
		Ingestor:     ingestor,
		Orchestrator: orchestrator,
		Transforms:   transforms,
		Handle:       handle,
		Offset:       &pipeline.OffsetHolder{},
		MapFrame:     cfg.GetMapFrame(),
		OdomFrame:    cfg.GetOdomFrame(),
	}
	defer node.Close()
	if err := node.SetOffset(geom.Identity()); err != nil {
		return res, err
	}

	var serial serialmux.SerialMuxInterface
	if o.serialPort != "" {
		mux, err := serialmux.NewRealSerialMux(o.serialPort, serialmux.PortOptions{BaudRate: o.serialBaud})
		if err != nil {
			return res, err
		}
		serial = mux
		defer serial.Close()
		if o.serialInit != "" {
			if err := serial.Initialize(strings.Split(o.serialInit, ",")...); err != nil {
				return res, err
			}
		}
	}

	admin := []func(*http.ServeMux){}
	if st != nil {
		admin = append(admin, func(mux *http.ServeMux) {
			if err := st.AttachAdminRoutes(mux); err != nil {
				monitoring.Warnf("[store] admin routes: %v", err)
			}
		})
	}
	if serial != nil {
		admin = append(admin, serial.AttachAdminRoutes)
	}

	var wg sync.WaitGroup
	if o.listen != "" {
		web := monitor.NewWebServer(monitor.WebServerConfig{
			Address: o.listen,
			Stats:   orchestrator,
			Grid:    handle,
			Offset:  node.Offset,
			History: history,
			Metrics: metrics,
			Admin:   admin,

			Poses:     poses,
			BaseFrame: cfg.GetBaseFrame(),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := web.Start(ctx); err != nil {
				monitoring.Errorf("[http] %v", err)
			}
		}()
	}

	if o.grpcListen != "" {
		server := rpc.NewServer(nil, broadcaster)
		if err := server.Listen(o.grpcListen); err != nil {
			return res, err
		}
		// Ending the broadcaster first closes open score streams.
		defer func() {
			broadcaster.Stop()
			server.Stop()
		}()
	}

	// Pull mode blocks here until a map arrives.
	if !cfg.GetUseMapTopic() {
		client, err := rpc.Dial(o.mapAddr)
		if err != nil {
			return res, err
		}
		monitoring.Logf("[node] requesting map from %s", o.mapAddr)
		err = ingestor.RequestMap(ctx, client)
		client.Close()
		if err != nil {
			cancel()
			wg.Wait()
			return res, nil
		}
	}

	events := make(chan pipeline.Event, 256)
	var sources sync.WaitGroup
	startSource := func(name string, fn func() error) {
		sources.Add(1)
		go func() {
			defer sources.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				monitoring.Errorf("[%s] %v", name, err)
			}
			monitoring.Debugf("[%s] source finished", name)
		}()
	}
	if serial != nil {
		// Subscribe before Monitor starts reading so no line is dropped.
		lines := source.SubscribeSerial(serial)
		startSource("serial", func() error { return lines.Run(ctx, events, nil) })
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serial.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				monitoring.Errorf("[serial] monitor: %v", err)
			}
		}()
	}
	if o.udpPort != 0 {
		udp := source.NewUDPListener(source.UDPListenerConfig{Address: fmt.Sprintf(":%d", o.udpPort), RcvBuf: 4 << 20})
		startSource("udp", func() error { return udp.Start(ctx, events) })
	}
	if o.pcapFile != "" {
		startSource("pcap", func() error {
			_, err := source.Replay(ctx, source.ReplayConfig{Path: o.pcapFile, Port: o.pcapPort, Realtime: o.pcapRealtime}, events)
			return err
		})
	}
	// Only finite sources ever finish before ctx; once all have, the node
	// drains what is queued and stops.
	if o.serialPort != "" || o.udpPort != 0 || o.pcapFile != "" {
		go func() {
			sources.Wait()
			close(events)
		}()
	}

	err = node.Run(ctx, events)
	res.Stats = orchestrator.Stats()
	cancel()
	wg.Wait()
	sources.Wait()
	return res, err
}
