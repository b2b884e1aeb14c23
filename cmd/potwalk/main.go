package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/cjeanneret/potwalk/internal/config"
	"github.com/cjeanneret/potwalk/internal/debug"
	"github.com/cjeanneret/potwalk/internal/hw/gpio"
	"github.com/cjeanneret/potwalk/internal/hw/indicator"
	"github.com/cjeanneret/potwalk/internal/hw/link"
	"github.com/cjeanneret/potwalk/internal/hw/pot"
	"github.com/cjeanneret/potwalk/internal/logic/autopilot"
	"github.com/cjeanneret/potwalk/internal/logic/completion"
	"github.com/cjeanneret/potwalk/internal/logic/frame"
	"github.com/cjeanneret/potwalk/internal/logic/movement"
	"github.com/cjeanneret/potwalk/internal/logic/orientation"
	"github.com/cjeanneret/potwalk/internal/logic/physics"
	"github.com/cjeanneret/potwalk/internal/web"
)

// Input sources selectable with -input.
const (
	inputAutopilot = "autopilot"
	inputIdle      = "idle"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	portName := flag.String("port", "", "override serial port (e.g. /dev/ttyACM0, COM6)")
	baud := flag.Int("baud", 0, "override serial baud rate")
	mockSerial := flag.Bool("mock-serial", false, "use the synthetic serial device")
	input := flag.String("input", inputAutopilot, "input source: autopilot or idle")
	listPorts := flag.Bool("list-ports", false, "list serial ports and exit")
	flag.Parse()

	if *listPorts {
		ports, err := link.ListPorts()
		if err != nil {
			log.Fatalf("list serial ports failed: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Apply CLI overrides (zero values keep the config)
	if err := validateCLIOverrides(*baud, *input); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, cliOverrides{Port: *portName, Baud: *baud, MockSerial: *mockSerial})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	session := uuid.NewString()
	debug.Section("Initialization")
	debug.Value("Session", session)
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", debug.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, runOptions{
		session: session,
		input:   *input,
		webPort: webPort.port(),
		opener:  link.NewOpener(cfg.Serial.Mock),
	})
	stop()
	if err != nil {
		log.Fatalf("potwalk: %v", err)
	}
}

// runOptions carries the per-process choices run does not read from cfg.
type runOptions struct {
	session string
	input   string
	webPort int // 0 = no web server
	opener  link.Opener
}

// run owns every hardware resource and releases them on all exit paths.
// It returns when ctx is cancelled or, without a web server and with
// stop_on_complete set, once the level completes.
func run(ctx context.Context, cfg *config.Config, o runOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var broadcaster *web.StatusBroadcaster
	if o.webPort > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	// Initialize GPIO driver and completion indicator
	debug.Step(1, "Initializing GPIO indicator")
	gpioDriver, err := gpio.NewDriver(cfg.Indicator.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()
	ind, err := indicator.New(gpioDriver, cfg.Indicator.Pin)
	if err != nil {
		return fmt.Errorf("init indicator: %w", err)
	}
	defer func() {
		if err := ind.Close(); err != nil {
			log.Printf("closing indicator failed: %v", err)
		}
	}()

	// Open the device link. A missing device is not fatal.
	debug.Step(2, "Opening serial link")
	dev := link.New(o.opener)
	if err := dev.Open(cfg.Serial.Port, cfg.Serial.BaudRate); err != nil {
		debug.Error(err)
		debug.Info("Continuing without device on %s", dev.Name())
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Printf("closing serial link failed: %v", err)
		}
	}()

	// Build the frame pipeline
	debug.Step(3, "Building frame loop")
	var observer frame.Observer
	var telemetry *web.Telemetry
	if broadcaster != nil {
		telemetry = web.NewTelemetry(o.session, cfg.PublishInterval(), broadcaster)
		observer = telemetry
	}
	loop, machine, err := buildLoop(cfg, dev, &pot.Cell{}, observer)
	if err != nil {
		return fmt.Errorf("build frame loop: %w", err)
	}
	machine.OnComplete(func() {
		if err := ind.Set(true); err != nil {
			debug.Error(fmt.Errorf("indicator: %w", err))
		}
	})

	source := newInputSource(o.input, cfg)
	debug.Value("Input source", o.input)

	// Optional web server, stopped with ctx
	webDone := make(chan error, 1)
	if o.webPort > 0 {
		srv, err := web.NewServer(fmt.Sprintf(":%d", o.webPort), broadcaster, telemetry, loop)
		if err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		go func() { webDone <- srv.Run(ctx) }()
	} else {
		close(webDone)
	}

	debug.Section("Running")
	loopErr := frame.Run(ctx, loop, source, frame.RunParams{
		Tick:           cfg.Tick(),
		MaxDelta:       cfg.MaxDelta(),
		StopOnComplete: cfg.Game.StopOnComplete && o.webPort == 0,
	})
	if errors.Is(loopErr, context.Canceled) {
		loopErr = nil
	}

	s := loop.Snapshot()
	debug.Summary(fmt.Sprintf("Run finished: %v after %d frames", s.Completion, s.Frame))

	cancel()
	if err := <-webDone; err != nil {
		log.Printf("web server: %v", err)
	}
	return loopErr
}

// buildLoop wires the avatar models and the completion machine around dev.
func buildLoop(cfg *config.Config, dev frame.Link, cell *pot.Cell, observer frame.Observer) (*frame.Loop, *completion.Machine, error) {
	move, err := movement.NewModel(movement.Config{
		WalkSpeed:        cfg.Movement.WalkSpeed,
		SprintSpeed:      cfg.Movement.SprintSpeed,
		MouseSensitivity: cfg.Movement.MouseSensitivity,
		InvertPitch:      cfg.Movement.InvertPitch,
	})
	if err != nil {
		return nil, nil, err
	}
	debug.PrintStruct("Movement config", move.Config())

	look := orientation.NewModel(cfg.Movement.MouseSensitivity, cfg.Movement.InvertPitch, cfg.Avatar.YawDeg)

	machine, err := completion.NewMachine(completion.Target{
		Position:      vec(cfg.Target.Position),
		TriggerRadius: cfg.Target.TriggerRadius,
	}, cfg.CompleteCommand())
	if err != nil {
		return nil, nil, fmt.Errorf("completion: %w", err)
	}
	debug.PrintStruct("Target", cfg.Target)

	loop, err := frame.NewLoop(frame.Deps{
		View:        look,
		Orientation: look,
		Movement:    move,
		Resolver:    physics.Ground{GroundY: cfg.Avatar.GroundY, SkinWidth: cfg.Avatar.SkinWidth},
		Completion:  machine,
		Link:        dev,
		Cell:        cell,
		Start:       vec(cfg.Avatar.Start),
		ReadTimeout: cfg.ReadTimeout(),
		Observer:    observer,
	})
	if err != nil {
		return nil, nil, err
	}
	return loop, machine, nil
}

// newInputSource returns the frame input source named by kind.
func newInputSource(kind string, cfg *config.Config) frame.InputSource {
	if kind == inputIdle {
		return frame.InputFunc(func(frame.Snapshot) frame.Input { return frame.Input{} })
	}
	return autopilot.New(autopilot.Params{
		Target:         vec(cfg.Target.Position),
		Sensitivity:    cfg.Movement.MouseSensitivity,
		InvertPitch:    cfg.Movement.InvertPitch,
		TurnRateDeg:    cfg.Autopilot.TurnRateDeg,
		SprintDistance: cfg.Autopilot.SprintDistance,
	})
}

func vec(v config.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

// cliOverrides holds flag values that replace config values when set.
type cliOverrides struct {
	Port       string
	Baud       int
	MockSerial bool
}

// validateCLIOverrides checks flag values before they touch the config.
// A zero baud means "use config".
func validateCLIOverrides(baud int, input string) error {
	if baud < 0 || baud > 4000000 {
		return fmt.Errorf("baud must be between 1 and 4000000, got %d", baud)
	}
	if input != inputAutopilot && input != inputIdle {
		return fmt.Errorf("input must be %q or %q, got %q", inputAutopilot, inputIdle, input)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only set values are applied.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.Port != "" {
		cfg.Serial.Port = o.Port
	}
	if o.Baud > 0 {
		cfg.Serial.BaudRate = o.Baud
	}
	if o.MockSerial {
		cfg.Serial.Mock = true
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
