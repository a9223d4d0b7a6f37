package main

import (
	"flag"
	"math/rand"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/metadata"
	"github.com/bidscreen/bidscreen-server/router"
	"github.com/bidscreen/bidscreen-server/server"
	"github.com/bidscreen/bidscreen-server/util/task"
)

// Rev holds the binary revision string.
// Set at build time using:
//    go build -ldflags "-X main.Rev=`git rev-parse --short HEAD`"
var Rev string

const version = "0.1.0"

func init() {
	rand.Seed(time.Now().UnixNano())
}

func main() {
	flag.Parse() // required for glog flags and testing package flags

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("Configuration could not be loaded or did not pass validation: %v", err)
	}

	if err := serve(version, Rev, cfg); err != nil {
		glog.Exitf("bidscreen-server failed: %v", err)
	}
}

const configFileName = "bidscreen"

func loadConfig() (*config.Configuration, error) {
	v := viper.New()
	config.SetupViper(v, configFileName)
	return config.New(v)
}

func serve(version, revision string, cfg *config.Configuration) error {
	metaProvider, err := setupMetadata(&cfg.Metadata)
	if err != nil {
		return err
	}

	r, err := router.New(cfg, metaProvider)
	if err != nil {
		return err
	}

	if cfg.Metadata.Endpoint != "" {
		refreshRate := time.Duration(cfg.Metadata.RefreshRateSeconds) * time.Second
		metaTicker := task.NewTickerTaskFromFunc(refreshRate, func() error {
			err := metaProvider.Update()
			r.MetricsEngine.RecordMetadataRefresh(err == nil)
			return err
		})
		metaTicker.Start()
		defer metaTicker.Stop()
	}

	corsRouter := router.SupportCORS(r)
	server.Listen(cfg, router.NoCache{Handler: corsRouter}, router.Admin(version, revision, metaProvider), r.MetricsEngine)

	r.Shutdown()
	return nil
}

// setupMetadata builds the dictionary provider and installs any locally
// configured dictionaries. The initial endpoint fetch happens here too, so
// screening starts with a snapshot whenever the endpoint is reachable;
// periodic refresh is the caller's business.
func setupMetadata(cfg *config.Metadata) (*metadata.Provider, error) {
	transport := metadata.NewFastTransport(time.Duration(cfg.TimeoutMillis) * time.Millisecond)
	staleAfter := time.Duration(cfg.StaleAfterSeconds) * time.Second
	provider := metadata.NewProvider(transport, cfg.Endpoint, staleAfter, cfg.MinSellersVersion)

	switch {
	case cfg.Directory != "":
		bundle, err := metadata.LoadDirectory(cfg.Directory)
		if err != nil {
			return nil, err
		}
		provider.Install(bundle)
	case cfg.File != "":
		bundle, err := metadata.LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		provider.Install(bundle)
	}

	if cfg.Endpoint != "" {
		if err := provider.Update(); err != nil {
			glog.Warningf("Initial metadata fetch failed, screening starts without dictionaries: %v", err)
		}
	}
	return provider, nil
}
