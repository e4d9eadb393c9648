package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log"
	"net"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/jinjor/rtsynth/src/audio"
	"github.com/jinjor/rtsynth/src/bridge"
	"github.com/jinjor/rtsynth/src/config"
	"github.com/jinjor/rtsynth/src/queue"
	"github.com/jinjor/rtsynth/src/rt"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "", "JSON config file")
	blockSize  = flag.Int("block-size", 0, "frames per graph update")
	serialPort = flag.Int("serial-port", -1, "serial port number; enables the serial bridge")
	serialDev  = flag.String("serial-device", "", "serial device path; enables the serial bridge")
	baud       = flag.Int("baud", 0, "serial baud rate")
	serialMode = flag.String("serial-mode", "", "serial mode such as 8N1")
	midiOut    = flag.String("midi-out", "", "MIDI output port name; enables the MIDI bridge")
	midiIn     = flag.Bool("midi-in", false, "play notes from the first MIDI input")
	realtime   = flag.Bool("realtime", false, "raise threads to SCHED_RR priorities")
	noAudio    = flag.Bool("no-audio", false, "run the bridges only")
	sockPath   = flag.String("sock", "/tmp/rtsynth.sock", "unix socket for commands; empty disables it")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Lshortfile)
	log.Printf("NumCPU: %v\n", runtime.NumCPU())

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("error: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	go func() {
		select {
		case sig := <-signalCh:
			log.Printf("Caught signal %s: shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("error: %v\n", err)
	}
	log.Println("main() ended.")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "block-size":
			cfg.Audio.BlockSize = *blockSize
		case "serial-port":
			cfg.Serial.Enabled = true
			cfg.Serial.Port = *serialPort
		case "serial-device":
			cfg.Serial.Enabled = true
			cfg.Serial.Device = *serialDev
		case "baud":
			cfg.Serial.Baud = *baud
		case "serial-mode":
			cfg.Serial.Mode = *serialMode
		case "midi-out":
			cfg.MIDIOut.Enabled = true
			cfg.MIDIOut.Name = *midiOut
		case "midi-in":
			cfg.MIDIIn.Enabled = *midiIn
		case "realtime":
			cfg.Realtime.Enabled = *realtime
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	var scheduler *rt.Scheduler
	if cfg.Realtime.Enabled {
		table, err := cfg.PriorityTable()
		if err != nil {
			return err
		}
		scheduler, err = rt.NewScheduler(table)
		if err != nil {
			return err
		}
	}
	opts := bridge.Options{
		PollInterval: time.Duration(cfg.Bridge.PollInterval),
		Scheduler:    scheduler,
	}
	q := queue.New[*bridge.Message](64)

	serialBridge := bridge.NewSerialBridge(q, opts)
	if cfg.Serial.Enabled {
		// a missing device is not fatal
		_ = serialBridge.Open(bridge.SerialConfig{
			Port:        cfg.Serial.Port,
			Device:      cfg.Serial.Device,
			Baud:        cfg.Serial.Baud,
			Mode:        cfg.Serial.Mode,
			FlowControl: cfg.Serial.FlowControl,
		})
	}
	var sink bridge.Sink
	if cfg.MIDIOut.Enabled {
		s, err := bridge.OpenMIDIOut(cfg.MIDIOut.Name)
		if err != nil {
			log.Printf("running without MIDI OUT: %v\n", err)
		} else {
			sink = s
		}
	}
	midiBridge := bridge.NewMIDIOutBridge(q, sink, cfg.Bridge.MaxBytes, opts)

	var a *audio.Audio
	if !*noAudio {
		var err error
		a, err = audio.NewAudio(cfg.Audio, scheduler)
		if err != nil {
			midiBridge.Close()
			serialBridge.Stop()
			return err
		}
		defer a.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	serialBridge.Start(ctx)
	midiBridge.Start(ctx)
	g.Go(func() error {
		<-ctx.Done()
		serialBridge.Stop()
		serialBridge.Wait()
		return midiBridge.Close()
	})
	if a == nil {
		return g.Wait()
	}
	g.Go(func() error {
		return a.Start(ctx)
	})
	if cfg.MIDIIn.Enabled {
		g.Go(func() error {
			for data := range audio.ListenToMidiIn(ctx, "") {
				a.AddMidiEvent(data)
			}
			return nil
		})
	}
	if *sockPath != "" {
		g.Go(func() error {
			return serveCommands(ctx, *sockPath, a.CommandCh)
		})
	}
	return g.Wait()
}

// ----- IPC ----- //

func serveCommands(ctx context.Context, path string, commandCh chan<- []string) error {
	os.Remove(path)
	listener, err := new(net.ListenConfig).Listen(ctx, "unix", path)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		log.Println("Closing IPC...")
		if err := listener.Close(); err != nil {
			log.Printf("error while closing listener: %v", err)
		}
	})
	defer func() {
		if stop() {
			listener.Close()
		}
		os.Remove(path)
	}()
	log.Printf("start listening on %s...\n", path)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := receiveCommands(ctx, conn, commandCh); err != nil {
			log.Printf("connection closed: %v\n", err)
		}
	}
}

func receiveCommands(ctx context.Context, conn net.Conn, commandCh chan<- []string) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		if stop() {
			if err := conn.Close(); err != nil {
				log.Printf("error while closing connection: %v", err)
			}
		}
	}()
	reader := bufio.NewReader(conn)
	var line []byte
	for {
		next, isPrefix, err := reader.ReadLine()
		if err == io.EOF || ctx.Err() != nil {
			break
		}
		if err != nil {
			return err
		}
		line = append(line, next...)
		if isPrefix {
			continue
		}
		command, err := parseCommand(string(line))
		line = line[:0]
		if err != nil {
			log.Printf("invalid command: %v\n", err)
			continue
		}
		if len(command) == 0 {
			continue
		}
		select {
		case commandCh <- command:
		case <-ctx.Done():
			return nil
		}
		log.Printf("received: %v\n", command)
	}
	log.Println("receiveCommands() ended.")
	return nil
}

func parseCommand(line string) ([]string, error) {
	fields := strings.Fields(line)
	for i, item := range fields {
		escaped, err := url.QueryUnescape(item)
		if err != nil {
			return nil, err
		}
		fields[i] = escaped
	}
	return fields, nil
}
