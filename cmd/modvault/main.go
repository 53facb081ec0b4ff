package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ModuleVault/internal/cache"
	"github.com/GriffinCanCode/ModuleVault/internal/config"
	"github.com/GriffinCanCode/ModuleVault/internal/logging"
	"github.com/GriffinCanCode/ModuleVault/internal/monitoring"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Optional YAML or TOML config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	dev := flag.Bool("dev", false, "Development logging (console encoder)")
	flag.Parse()

	logger, err := logging.New(logging.Config{
		Level:       *logLevel,
		Development: *dev,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	props, err := loadProperties(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	vault, err := cache.New(logger, props)
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	metrics := monitoring.NewMetrics()
	vault.WithMetrics(metrics)

	if flag.NArg() < 1 {
		usage()
	}

	opID := uuid.New().String()
	cmdLogger := logger.With(zap.String("op", opID))

	switch flag.Arg(0) {
	case "install":
		runInstall(cmdLogger, vault, flag.Args()[1:])
	case "list":
		runList(vault)
	case "info":
		runInfo(vault, flag.Args()[1:])
	case "remove":
		runRemove(cmdLogger, vault, flag.Args()[1:])
	case "stats":
		runStats(vault, metrics)
	default:
		usage()
	}
}

func loadProperties(path string) (config.Properties, error) {
	props, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return props, nil
	}
	fileProps, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}
	return config.Merge(props, fileProps), nil
}

func runInstall(logger *logging.Logger, vault *cache.Cache, args []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	id := fs.Int64("id", 0, "Archive id (positive, unique)")
	location := fs.String("location", "", "Opaque location string recorded for the module")
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Fatal("install requires exactly one packaged module file")
	}

	stream, err := os.Open(fs.Arg(0))
	if err != nil {
		log.Fatalf("Failed to open %s: %v", fs.Arg(0), err)
	}

	// Create takes ownership of the stream and closes it.
	st, err := vault.Create(*id, *location, stream)
	if err != nil {
		log.Fatalf("Install failed: %v", err)
	}

	logger.Info("module installed",
		zap.Int64("id", st.ID()),
		zap.String("location", st.Location()),
		zap.String("format", st.Format()))
	fmt.Printf("installed archive %d (%s) at %s\n", st.ID(), st.Format(), st.RootDir())
}

func runList(vault *cache.Cache) {
	archives := vault.Archives()
	if len(archives) == 0 {
		fmt.Println("no archives installed")
		return
	}
	for _, st := range archives {
		size, err := st.Size()
		if err != nil {
			size = -1
		}
		fmt.Printf("%d\t%s\t%d bytes\n", st.ID(), st.Location(), size)
	}
}

func runInfo(vault *cache.Cache, args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	id := fs.Int64("id", 0, "Archive id")
	fs.Parse(args)

	st := vault.Archive(*id)
	if st == nil {
		log.Fatalf("No archive with id %d", *id)
	}

	size, err := st.Size()
	if err != nil {
		log.Fatalf("Failed to size archive: %v", err)
	}
	fmt.Printf("id:        %d\n", st.ID())
	fmt.Printf("location:  %s\n", st.Location())
	fmt.Printf("format:    %s\n", st.Format())
	fmt.Printf("installed: %s\n", st.InstalledAt())
	fmt.Printf("directory: %s\n", st.RootDir())
	fmt.Printf("size:      %d bytes\n", size)
	fmt.Printf("index:     %d\n", vault.ArchiveIndex(st))
}

func runRemove(logger *logging.Logger, vault *cache.Cache, args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	id := fs.Int64("id", 0, "Archive id")
	fs.Parse(args)

	st := vault.Archive(*id)
	if st == nil {
		log.Fatalf("No archive with id %d", *id)
	}
	if err := vault.Remove(st); err != nil {
		log.Fatalf("Remove failed: %v", err)
	}

	logger.Info("module removed", zap.Int64("id", *id))
	fmt.Printf("removed archive %d\n", *id)
}

func runStats(vault *cache.Cache, m *monitoring.Metrics) {
	fmt.Printf("profile:  %s\n", vault.ProfileDir())
	fmt.Printf("archives: %d\n", len(vault.Archives()))
	fmt.Printf("uptime:   %s\n", m.Uptime())

	families, err := m.Registry().Gather()
	if err != nil {
		log.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				fmt.Printf("%s: %v\n", mf.GetName(), metric.GetCounter().GetValue())
			case metric.GetGauge() != nil:
				fmt.Printf("%s: %v\n", mf.GetName(), metric.GetGauge().GetValue())
			case metric.GetHistogram() != nil:
				fmt.Printf("%s: %d samples\n", mf.GetName(), metric.GetHistogram().GetSampleCount())
			}
		}
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: modvault [flags] <install|list|info|remove|stats> [args]")
	flag.PrintDefaults()
	os.Exit(2)
}
