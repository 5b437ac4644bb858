// Command modsim serves a template-described modbus field device over
// TCP, UDP or a serial line, with its register values advancing on a
// timer or mirroring a weather simulator.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/thinkgos/modsim"
	"github.com/thinkgos/modsim/simulators/weather"
)

func main() {
	// optional .env for the API key and template path
	_ = godotenv.Load()

	var (
		template  = flag.String("template", os.Getenv("MODSIM_TEMPLATE"), "template file path or http(s) URL, empty for the built-in device")
		port      = flag.String("port", "", "override the template's port, like tcp:1502 or /dev/ttyUSB0")
		interval  = flag.Duration("interval", modsim.DefaultUpdateInterval, "simulation update interval")
		simulator = flag.String("simulator", "", "delegate value updates to a simulator (weather)")
		listPorts = flag.Bool("list-ports", false, "list usable serial ports and exit")
		debug     = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if *listPorts {
		for _, p := range modsim.ListSerialPorts() {
			fmt.Println(p)
		}
		return
	}

	parser := modsim.NewParser()
	parser.LogMode(*debug)

	source := *template
	if *simulator == "weather" && source == "" {
		source = "builtin:weather"
	}

	var (
		tpl *modsim.Template
		err error
	)
	if source == "builtin:weather" {
		tpl, err = parser.Parse(strings.NewReader(weather.Descriptors()))
	} else {
		tpl, err = parser.Load(source)
	}
	if err != nil {
		log.Fatalf("loading template: %v", err)
	}
	if *port != "" {
		tpl.Link.Port = *port
	}

	slave, err := modsim.NewSlaveContext(tpl)
	if err != nil {
		log.Fatalf("building device: %v", err)
	}

	var upd *modsim.Updater
	switch *simulator {
	case "":
		upd = modsim.NewUpdater(slave)
	case "weather":
		station := weather.New(
			weather.WithAPIKey(os.Getenv("OWM_API_KEY")),
			weather.WithRefresh(envDuration("OWM_REFRESH")),
		)
		defer station.Stop()
		upd = modsim.NewDelegatedUpdater(slave, station)
	default:
		log.Fatalf("unknown simulator %q", *simulator)
	}
	upd.LogMode(*debug)
	upd.SetInterval(*interval)
	if err := upd.Start(); err != nil {
		log.Fatalf("starting updater: %v", err)
	}
	defer upd.Stop()

	srv := modsim.NewServer(slave)
	srv.LogMode(*debug)
	if err := srv.Serve(tpl.Link); err != nil {
		log.Fatalf("serving %s: %v", tpl.Link.Port, err)
	}
	defer srv.Close()

	id := slave.Identity()
	log.Printf("%s %s (slave %d) serving on %s", id.VendorName, id.ProductName, slave.SlaveID(), tpl.Link.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Print("shutting down")
}

func envDuration(name string) time.Duration {
	d, err := time.ParseDuration(os.Getenv(name))
	if err != nil {
		return 0
	}
	return d
}
