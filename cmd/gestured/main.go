package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/gesture.auth/internal/auth"
	"github.com/banshee-data/gesture.auth/internal/config"
	"github.com/banshee-data/gesture.auth/internal/db"
	"github.com/banshee-data/gesture.auth/internal/httputil"
	"github.com/banshee-data/gesture.auth/internal/sensor"
	"github.com/banshee-data/gesture.auth/internal/serialmux"
	"github.com/banshee-data/gesture.auth/internal/server"
	"github.com/banshee-data/gesture.auth/internal/timeutil"
	"github.com/banshee-data/gesture.auth/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Use a simulated sensor instead of the serial board")
	listen      = flag.String("listen", ":7400", "Client listen address")
	debugListen = flag.String("debug-listen", "localhost:7401", "Admin /debug/ listen address (empty to disable)")
	serialPort  = flag.String("serial-port", "/dev/ttyACM0", "Sensor board serial port (ignored in dev mode)")
	dbPath      = flag.String("db", "gesture.db", "Path to the SQLite template database")
	configPath  = flag.String("config", "", "Path to a JSON or YAML config file (default: config/gesture.defaults.json when present)")
	simPattern  = flag.String("sim-pattern", "", "Override the simulated gesture: circle, eight, line or still")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		cli := &db.MigrateCLI{Out: os.Stdout, In: os.Stdin}
		if err := cli.Run(flag.Args()[1:], *dbPath); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := loadConfig(*configPath, *simPattern)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	authCfg := cfg.ToAuthConfig()
	log.Printf("%s starting: capture %s -> %d points, %d samples, %d of %d attempts, threshold %.3f",
		version.String(), authCfg.CaptureDuration, authCfg.TrajectoryLength, authCfg.RegistrationSamples,
		authCfg.Quorum, authCfg.VerificationAttempts, authCfg.Threshold)

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	store := db.NewTemplateStore(database, authCfg.RegistrationSamples, authCfg.TrajectoryLength)
	if users, err := store.ListUsers(context.Background()); err != nil {
		log.Printf("failed to list users: %v", err)
	} else {
		log.Printf("%d registered users", len(users))
	}

	clock := timeutil.RealClock{}
	sensorMux, source, err := openSensor(cfg, clock)
	if err != nil {
		log.Fatalf("Failed to open sensor: %v", err)
	}
	defer sensorMux.Close()

	sampler := sensor.NewSampler(sensor.NewDevice(), source, clock, authCfg.CaptureDuration, authCfg.TrajectoryLength)
	manager := auth.NewManager(authCfg, store, sampler, clock)
	srv := server.New(manager)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sensorMux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(ctx, *listen); err != nil {
			log.Printf("gesture server error: %v", err)
			stop()
		}
		log.Print("gesture server stopped")
	}()

	if *debugListen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mux := http.NewServeMux()
			sensorMux.AttachAdminRoutes(mux)
			if err := database.AttachAdminRoutes(mux, store); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}
			attachSessionRoutes(mux, manager, source)
			serveDebug(ctx, *debugListen, mux)
		}()
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// loadConfig reads path, or the defaults file when path is empty, and
// applies the -sim-pattern override. Without either file the built-in
// defaults apply.
func loadConfig(path, pattern string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadConfig(path)
	} else {
		cfg, path, err = config.LoadDefaultConfig()
		if errors.Is(err, os.ErrNotExist) {
			cfg, path, err = config.EmptyConfig(), "built-in defaults", nil
		}
	}
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded configuration from %s", path)
	if pattern != "" {
		cfg.SimPattern = &pattern
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openSensor returns the serial mux and the sample source for the capture
// pipeline. In dev mode the mux is disabled and samples are synthesized.
func openSensor(cfg *config.Config, clock timeutil.Clock) (serialmux.SerialMuxInterface, sensor.Source, error) {
	rate := cfg.GetSensorRateHz()
	if *devMode {
		log.Printf("dev mode: simulating %q gestures at %d Hz", cfg.GetSimPattern(), rate)
		src := sensor.NewSimulatedSource(clock, rate, cfg.GetSimPeriod(), cfg.GetSimPattern(), cfg.GetSimNoise())
		return serialmux.NewDisabledSerialMux(), src, nil
	}

	if *serialPort == "" {
		return nil, nil, errors.New("serial port is required")
	}
	mux, err := serialmux.NewRealSerialMux(*serialPort, serialmux.PortOptions{BaudRate: cfg.GetSerialBaud()})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create sensor port: %w", err)
	}
	if err := mux.Initialize(rate); err != nil {
		mux.Close()
		return nil, nil, fmt.Errorf("failed to initialize sensor board: %w", err)
	}
	log.Printf("initialized sensor board on %s at %d Hz", *serialPort, rate)
	return mux, sensor.NewSerialSource(mux, clock), nil
}

// attachSessionRoutes adds live session introspection and, in dev mode,
// a switch for the simulated gesture.
func attachSessionRoutes(mux *http.ServeMux, manager *auth.Manager, source sensor.Source) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Sessions", func() any { return manager.Count() })
	debug.KVFunc("Authenticated", func() any { return len(manager.Authenticated()) })

	sim, ok := source.(*sensor.SimulatedSource)
	if !ok {
		return
	}
	debug.Handle("sim-pattern", "Switch the simulated gesture (?p=circle|eight|line|still)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := sensor.ParsePattern(r.URL.Query().Get("p"))
		if err != nil {
			httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		sim.SetPattern(p)
		httputil.WriteJSONOK(w, map[string]string{"pattern": string(p)})
	}))
}

func serveDebug(ctx context.Context, addr string, mux *http.ServeMux) {
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("debug server shutdown error: %v", err)
		if err := srv.Close(); err != nil {
			log.Printf("debug server force close error: %v", err)
		}
	}
	log.Printf("debug server stopped")
}
