// Command mapserver serves a stored occupancy map over gRPC for nodes
// running with use_map_topic disabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/localize/internal/localize/mapserver"
	"github.com/banshee-data/localize/internal/localize/rpc"
	"github.com/banshee-data/localize/internal/monitoring"
	"github.com/banshee-data/localize/internal/version"
)

type options struct {
	mapKey    string
	storeKind string
	root      string
	listen    string
	s3        mapserver.S3Config
}

func parseFlags(fs *flag.FlagSet, args []string) (options, bool, error) {
	var o options
	fs.StringVar(&o.mapKey, "map", "map.yaml", "Key of the map description (yaml) within the store")
	fs.StringVar(&o.storeKind, "store", "fs", "Map store: fs or s3")
	fs.StringVar(&o.root, "root", ".", "Directory holding maps when -store=fs")
	fs.StringVar(&o.listen, "listen", ":50062", "gRPC listen address")
	fs.StringVar(&o.s3.Bucket, "bucket", "", "S3 bucket when -store=s3")
	fs.StringVar(&o.s3.Prefix, "prefix", "", "Key prefix inside the bucket")
	fs.StringVar(&o.s3.Region, "region", "", "S3 region (us-east-1 when empty)")
	fs.StringVar(&o.s3.Endpoint, "endpoint", "", "S3 endpoint override, for MinIO and friends")
	fs.BoolVar(&o.s3.PathStyle, "path-style", false, "Use path-style S3 addressing")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, false, err
	}
	return o, *showVersion, nil
}

func openStore(ctx context.Context, o options) (mapserver.BlobStore, error) {
	switch o.storeKind {
	case "fs":
		return mapserver.FSStore{Root: o.root}, nil
	case "s3":
		store, err := mapserver.NewS3Store(ctx, o.s3)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q (want fs or s3)", o.storeKind)
	}
}

// start loads the map once so a bad key fails at startup, then serves it.
func start(ctx context.Context, o options) (*rpc.Server, *mapserver.Provider, error) {
	store, err := openStore(ctx, o)
	if err != nil {
		return nil, nil, err
	}
	provider := &mapserver.Provider{Store: store, Key: o.mapKey}
	if _, err := provider.Map(ctx); err != nil {
		return nil, nil, err
	}
	server := rpc.NewServer(&rpc.MapService{Provider: provider}, nil)
	if err := server.Listen(o.listen); err != nil {
		return nil, nil, err
	}
	return server, provider, nil
}

func main() {
	opts, showVersion, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if showVersion {
		fmt.Println(version.String("mapserver"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, provider, err := start(ctx, opts)
	if err != nil {
		monitoring.Errorf("[mapserver] %v", err)
		os.Exit(1)
	}
	defer server.Stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("[mapserver] shutting down")
			return
		case <-hup:
			monitoring.Logf("[mapserver] SIGHUP: reloading %s", opts.mapKey)
			provider.Reload()
			if _, err := provider.Map(ctx); err != nil {
				monitoring.Warnf("[mapserver] reload failed, will retry on next request: %v", err)
			}
		}
	}
}
