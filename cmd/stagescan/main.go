package main

import (
	"flag"
	"io"
	"log"
	"net/http"

	"github.com/caarlos0/env"

	"github.com/mwaldt/stagescan/grid"
	"github.com/mwaldt/stagescan/link"
	"github.com/mwaldt/stagescan/scan"
	"github.com/mwaldt/stagescan/wsport"
)

type config struct {
	Port      string `env:"STAGE_PORT" envDefault:"/dev/ttyUSB0"`
	Baud      int    `env:"STAGE_BAUD" envDefault:"115200"`
	Bridge    string `env:"STAGE_BRIDGE"`
	Addr      string `env:"STAGE_ADDR" envDefault:":9092"`
	Workspace int    `env:"STAGE_WORKSPACE" envDefault:"200"`
}

// defaultParams is the scan the API offers before the first POST
// /api/scan replaces it.
func defaultParams(center grid.Position) scan.Params {
	return scan.Params{
		Extension:   3,
		Center:      center,
		StepSize:    1,
		DelayMillis: 100,
		Speed:       1000,
	}
}

func main() {
	log.SetFlags(log.Lshortfile)

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
	}

	port := flag.String("port", cfg.Port, "Serial port of the stage controller.")
	baud := flag.Int("baud", cfg.Baud, "Baud rate.")
	bridge := flag.String("bridge", cfg.Bridge, "Websocket URL of a serial bridge to use instead of a local port.")
	addr := flag.String("addr", cfg.Addr, "Address to bind the HTTP API to.")
	workspace := flag.Int("workspace", cfg.Workspace, "Workspace size in steps per axis.")
	verbose := flag.Bool("verbose", false, "Trace every serial line.")
	flag.Parse()

	var l *link.Link
	if *bridge != "" {
		l = link.NewWithDialer(*bridge, *baud, func(url string, _ int) (io.ReadWriteCloser, error) {
			return wsport.Dial(url)
		})
	} else {
		l = link.New(*port, *baud)
	}
	l.Verbose = *verbose

	if err := l.Open(); err != nil {
		log.Fatal("open link: ", err)
	}

	ctrl := scan.New(l, *workspace)

	// the hardware never reports position; assume the stage sits at
	// the workspace center on startup, as the rig is parked there
	center := grid.Position{X: *workspace / 2, Y: *workspace / 2}
	ctrl.SetPosition(center)
	if err := ctrl.Configure(defaultParams(center)); err != nil {
		log.Fatal("configure: ", err)
	}

	api := newAPI(l, ctrl)

	log.Println("listening on", *addr)
	err := http.ListenAndServe(*addr, api)
	if err != nil {
		log.Fatal(err)
	}
}
