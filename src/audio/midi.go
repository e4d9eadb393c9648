package audio

import (
	"context"
	"log"
	"strings"

	"gitlab.com/gomidi/midi"
	"gitlab.com/gomidi/rtmididrv"
)

// ListenToMidiIn forwards every message from the first MIDI input whose
// name contains name (any input when name is empty). The channel is closed
// when ctx is done or when no input could be opened.
func ListenToMidiIn(ctx context.Context, name string) <-chan []byte {
	ch := make(chan []byte, 1024)
	go func() {
		defer close(ch)
		drv, err := rtmididrv.New()
		if err != nil {
			log.Printf("failed to initialize MIDI driver: %v\n", err)
			return
		}
		defer func() {
			if err := drv.Close(); err != nil {
				log.Printf("failed to close MIDI driver: %v\n", err)
			}
		}()
		ins, err := drv.Ins()
		if err != nil {
			log.Printf("failed to get MIDI IN: %v\n", err)
			return
		}
		log.Printf("MIDI IN: %v\n", ins)
		in := selectMidiIn(ins, name)
		if in == nil {
			log.Println("WARN: MIDI IN not found")
			return
		}
		if err := in.Open(); err != nil {
			log.Printf("failed to open MIDI IN: %v\n", err)
			return
		}
		log.Println("opened " + in.String())
		defer func() {
			if err := in.Close(); err != nil {
				log.Printf("failed to close MIDI IN: %v\n", err)
			}
		}()
		log.Println("start listening MIDI IN...")
		if err := in.SetListener(func(data []byte, deltaMicroseconds int64) {
			msg := append([]byte(nil), data...)
			select {
			case ch <- msg:
			default:
				log.Println("WARN: MIDI IN overflow")
			}
		}); err != nil {
			log.Println("failed to set listener: " + err.Error())
			return
		}
		defer func() {
			log.Println("stop listening MIDI IN...")
			if err := in.StopListening(); err != nil {
				log.Printf("failed to stop listening: %v\n", err)
			}
		}()
		<-ctx.Done()
	}()
	return ch
}

func selectMidiIn(ins []midi.In, name string) midi.In {
	for _, in := range ins {
		if name == "" || strings.Contains(in.String(), name) {
			return in
		}
	}
	return nil
}
