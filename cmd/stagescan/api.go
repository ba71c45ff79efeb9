package main

import (
	"encoding/json"
	"io/ioutil"
	"log"
	"math"
	"net/http"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"

	"github.com/mwaldt/stagescan/grid"
	"github.com/mwaldt/stagescan/link"
	"github.com/mwaldt/stagescan/scan"
)

type api struct {
	http.Handler
	link *link.Link
	ctrl *scan.Controller
	sse  *sse.Server
}

// sampleEvent is pushed on /events/samples after every grid write.
// Value is null for a sample miss.
type sampleEvent struct {
	Position grid.Position `json:"position"`
	Value    *float64      `json:"value"`
}

func newAPI(l *link.Link, ctrl *scan.Controller) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		link:    l,
		ctrl:    ctrl,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(ioutil.Discard, "", 0),
		}),
	}

	r.HandleFunc("/api/scan", a.startScan).Methods("POST")
	r.HandleFunc("/api/scan", a.abortScan).Methods("DELETE")
	r.HandleFunc("/api/jog", a.jog).Methods("POST")
	r.HandleFunc("/api/grid", a.grid).Methods("GET")
	r.HandleFunc("/api/position", a.position).Methods("GET")
	r.HandleFunc("/api/state", a.state).Methods("GET")
	r.HandleFunc("/api/port", a.setPort).Methods("PUT")
	r.PathPrefix("/events/").Handler(a.sse)

	ctrl.OnSample(func(pos grid.Position, val float64) {
		ev := sampleEvent{Position: pos}
		if !math.IsNaN(val) {
			v := val
			ev.Value = &v
		}
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("ERROR: marshal json: %+v", err)
			return
		}
		a.sse.SendMessage("/events/samples", sse.SimpleMessage(string(data)))
	})
	ctrl.OnState(func(s scan.State) {
		a.sse.SendMessage("/events/state", sse.SimpleMessage(s.String()))
	})

	return a
}

func (a *api) startScan(w http.ResponseWriter, req *http.Request) {
	var p scan.Params
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.ctrl.Configure(p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.ctrl.Start(); err != nil {
		log.Printf("ERROR: start scan: %+v", err)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) abortScan(w http.ResponseWriter, req *http.Request) {
	a.ctrl.Abort()
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) jog(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Axis  string `json:"axis"`
		Delta int    `json:"delta"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.Axis) != 1 {
		http.Error(w, "axis and delta required", http.StatusBadRequest)
		return
	}
	if err := a.ctrl.Jog(body.Axis[0], body.Delta); err != nil {
		log.Printf("ERROR: jog: %+v", err)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	json.NewEncoder(w).Encode(a.ctrl.Position())
}

// grid returns the measurement map with null for unsampled cells; NaN
// has no JSON encoding.
func (a *api) grid(w http.ResponseWriter, req *http.Request) {
	snap := a.ctrl.Snapshot()
	rows := make([][]*float64, len(snap))
	for y, row := range snap {
		rows[y] = make([]*float64, len(row))
		for x, v := range row {
			if !math.IsNaN(v) {
				val := v
				rows[y][x] = &val
			}
		}
	}
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		log.Println("ERROR: encode:", err)
	}
}

func (a *api) position(w http.ResponseWriter, req *http.Request) {
	json.NewEncoder(w).Encode(a.ctrl.Position())
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	json.NewEncoder(w).Encode(struct {
		State string `json:"state"`
		Port  string `json:"port"`
		Open  bool   `json:"open"`
	}{a.ctrl.State().String(), a.link.Port(), a.link.IsOpen()})
}

func (a *api) setPort(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Port string `json:"port"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Port == "" {
		http.Error(w, "port required", http.StatusBadRequest)
		return
	}
	if a.ctrl.State() != scan.Idle {
		http.Error(w, "scan in progress", http.StatusConflict)
		return
	}
	if err := a.link.SetPort(body.Port); err != nil {
		log.Printf("ERROR: set port: %+v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
