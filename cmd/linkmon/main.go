// Command linkmon opens the configured link transport and tails the frames
// coming from the embedded controller, optionally sending a periodic
// heartbeat frame to exercise the outbound path.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robolink-dev/linkwire/internal/config"
	"github.com/robolink-dev/linkwire/internal/transceiver"
	"github.com/robolink-dev/linkwire/internal/transport/serialport"
	"github.com/robolink-dev/linkwire/internal/transport/usbbulk"
	"github.com/robolink-dev/linkwire/internal/wire"
)

var (
	configPath = flag.String("config", "", "Path to the TOML link configuration")
	port       = flag.String("port", "", "Serial device path (overrides the config's transport)")
	listPorts  = flag.Bool("list-ports", false, "List serial devices and exit")
	listUSB    = flag.String("list-usb", "", "List USB devices matching vid:pid (hex, e.g. 0483:5740) and exit")
	heartbeat  = flag.Duration("heartbeat", 0, "Send a heartbeat frame at this interval (0 disables)")
	poll       = flag.Duration("poll", 50*time.Millisecond, "How often to check for a fresh frame")
)

func main() {
	flag.Parse()

	if *listPorts {
		ports, err := serialport.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	if *listUSB != "" {
		var vid, pid uint16
		if _, err := fmt.Sscanf(*listUSB, "%04x:%04x", &vid, &pid); err != nil {
			log.Fatalf("invalid -list-usb %q: want vid:pid in hex", *listUSB)
		}
		serials, err := usbbulk.ListDevices(vid, pid)
		if err != nil {
			log.Fatalf("failed to list USB devices: %v", err)
		}
		for _, sn := range serials {
			if sn == "" {
				sn = "(no serial number)"
			}
			fmt.Println(sn)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *port != "" {
		cfg.Transport = config.TransportSerial
		cfg.Serial.Path = *port
	}

	tr, err := cfg.NewTransport()
	if err != nil {
		log.Fatalf("failed to build transport: %v", err)
	}
	if err := tr.Open(); err != nil {
		log.Fatalf("failed to open transport: %v", err)
	}

	mode, err := cfg.SendModeValue()
	if err != nil {
		log.Fatalf("invalid send mode: %v", err)
	}
	mgr, err := transceiver.New(tr, cfg.Capacity,
		transceiver.WithSendMode(mode),
		transceiver.WithMaxQueueSize(cfg.MaxQueueSize),
	)
	if err != nil {
		log.Fatalf("failed to create transceiver: %v", err)
	}
	defer mgr.Close()

	log.Printf("link up: transport=%s capacity=%d send_mode=%s", cfg.Transport, cfg.Capacity, mode)

	mgr.EnableRealtimeRead(true)
	if *heartbeat > 0 {
		mgr.EnableRealtimeSend(true)
		go sendHeartbeats(mgr, *heartbeat)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*poll)
	defer ticker.Stop()

	var lastShown []byte
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			return
		case <-ticker.C:
			p, ok := mgr.LatestPacket()
			if !ok {
				continue
			}
			frame := p.Bytes()
			if lastShown != nil && string(lastShown) == string(frame) {
				continue
			}
			lastShown = append(lastShown[:0], frame...)
			fmt.Println(hex.EncodeToString(frame))
		}
	}
}

// sendHeartbeats queues a frame carrying a monotonically increasing counter
// in the first payload bytes. Delivery rides the background send loop and
// the configured queue policy.
func sendHeartbeats(mgr *transceiver.Manager, interval time.Duration) {
	p := wire.MustNew(mgr.Capacity())
	var seq uint32
	for range time.Tick(interval) {
		seq++
		if !p.LoadData(seq, 1) {
			log.Printf("heartbeat sequence does not fit in a %d-byte frame", mgr.Capacity())
			return
		}
		if err := mgr.SendPacket(p); err != nil {
			log.Printf("heartbeat send failed: %v", err)
		}
	}
}
