package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/speters/ld2410d/ld2410"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

var connTo = flag.String("c", "", "connection string, use socket://[host]:[port] for TCP or [serialDevice] for direct serial connection")
var baud = flag.Int("b", ld2410.DefaultBaud, "serial baud rate")
var httpServe = flag.String("s", "", "start http server at [bindtohost][:]port")
var engineering = flag.Bool("eng", false, "enable engineering mode (per-gate energies) at startup")
var verbose = flag.Bool("v", false, "verbose logging")

// To be set via go build -ldflags "-X main.buildVersion=$(git describe --dirty) -X main.buildDate=$(date -u +%FT%TZ)"
var buildVersion = "unspecified"
var buildDate = "unknown"

var radar *ld2410.Controller

var bootInfo struct {
	Firmware ld2410.FirmwareVersion `json:"firmware"`
	Params   ld2410.Parameters      `json:"params"`
}

func getData(w http.ResponseWriter, r *http.Request) {
	m, ok := radar.Latest()
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("\"no data yet\"\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	e := json.NewEncoder(w)
	e.SetIndent("", "    ")
	e.Encode(m)
}

func getParams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	e := json.NewEncoder(w)
	e.SetIndent("", "    ")
	e.Encode(bootInfo.Params)
}

func getFirmware(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(bootInfo.Firmware)
}

func getMode(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "{\"mode\": %q}\n", radar.Mode())
}

func setMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Engineering bool `json:"engineering"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(err.Error()))
		return
	}
	err := reconfigure(func() error {
		if req.Engineering {
			return radar.EnableEngineeringMode()
		}
		return radar.DisableEngineeringMode()
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("\"OK\"\n"))
}

func setSensitivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Gate   int `json:"gate"`
		Moving int `json:"moving"`
		Static int `json:"static"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(err.Error()))
		return
	}
	err := reconfigure(func() error {
		return radar.SetGateSensitivity(req.Gate, req.Moving, req.Static)
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("\"OK\"\n"))
}

func versionInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	v := struct {
		Version   string `json:"version"`
		BuildDate string `json:"build_date"`
	}{Version: buildVersion, BuildDate: buildDate}
	j, _ := json.Marshal(v)
	w.Write(j)
}

// reconfigure pauses polling, runs f inside a configuration session, and
// resumes polling afterwards.
func reconfigure(f func() error) error {
	if radar.Running() {
		if err := radar.Stop(); err != nil {
			return err
		}
		defer func() {
			if err := radar.Start(); err != nil {
				log.Errorf("Resuming radar polling failed: %v", err)
			}
		}()
	}
	if err := radar.EnterConfiguration(); err != nil {
		return err
	}
	defer func() {
		if err := radar.ExitConfiguration(); err != nil {
			log.Errorf("Exiting configuration mode failed: %v", err)
		}
	}()
	return f()
}

func main() {
	flag.Parse()

	if *verbose == true {
		log.SetLevel(log.DebugLevel)
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	}

	if *connTo == "" {
		log.Fatal("Need connection string in -c option")
		os.Exit(1)
	}

	dev := ld2410.NewDevice()
	dev.Baud = *baud
	if err := dev.Connect(*connTo); err != nil {
		log.Fatalf("Connect failed: %v", err)
	}

	radar = ld2410.NewController(dev, ld2410.WithAckTimeout(2*time.Second))

	// The radar streams reports from power-on; drop whatever is buffered.
	dev.Flush()

	if err := radar.EnterConfiguration(); err != nil {
		log.Fatalf("Could not enter configuration mode: %v", err)
	}

	fw, err := radar.ReadFirmwareVersion()
	if err != nil {
		log.Errorf("Reading firmware version failed: %v", err)
	} else {
		log.Infof("Radar firmware %v", fw)
		bootInfo.Firmware = fw
	}

	params, err := radar.ReadParameters()
	if err != nil {
		log.Errorf("Reading detection parameters failed: %v", err)
	} else {
		bootInfo.Params = params
	}

	if *engineering {
		if err := radar.EnableEngineeringMode(); err != nil {
			log.Errorf("Enabling engineering mode failed: %v", err)
		}
	}

	if err := radar.ExitConfiguration(); err != nil {
		log.Fatalf("Could not exit configuration mode: %v", err)
	}

	if err := radar.Start(); err != nil {
		log.Fatalf("Could not start radar polling: %v", err)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	if *httpServe != "" {
		router := mux.NewRouter()

		router.HandleFunc("/data", getData).Methods("GET")
		router.HandleFunc("/params", getParams).Methods("GET")
		router.HandleFunc("/firmware", getFirmware).Methods("GET")
		router.HandleFunc("/version", versionInfo).Methods("GET")
		router.HandleFunc("/mode", getMode).Methods("GET")
		router.HandleFunc("/mode", setMode).Methods("POST")
		router.HandleFunc("/sensitivity", setSensitivity).Methods("POST")

		// accept :[portnum] as well as [portnum]
		if i, err := strconv.Atoi(*httpServe); err == nil {
			*httpServe = fmt.Sprintf(":%d", i)
		}

		h := &http.Server{Addr: *httpServe, Handler: router}
		go func() { log.Error(h.ListenAndServe()) }()
	}

	<-done
	radar.Stop()
	dev.Close()
}
