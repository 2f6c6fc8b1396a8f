// Command sweeprun drives a 1-D or 2-D parameter sweep against a serial
// instrument (or a built-in simulated one), persisting every point to a
// sqlite dataset and optionally exporting a CSV dump and an HTML chart.
//
// Examples:
//
//	sweeprun -name pinchoff -outer 0:1:0.05 -csv pinchoff.csv
//	sweeprun -name stability -outer 0:1:0.1 -inner -0.5:0.5:0.1 \
//	    -port /dev/ttyUSB0 -baud 115200 -chart stability.html
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/sweep.report/internal/dataset"
	"github.com/banshee-data/sweep.report/internal/export"
	"github.com/banshee-data/sweep.report/internal/instrument"
	"github.com/banshee-data/sweep.report/internal/measure"
	"github.com/banshee-data/sweep.report/internal/monitoring"
	"github.com/banshee-data/sweep.report/internal/param"
	"github.com/banshee-data/sweep.report/internal/rangespec"
)

var (
	runName   = flag.String("name", "sweep", "run name recorded in the dataset")
	dbPath    = flag.String("db", "runs.db", "sqlite dataset path")
	csvPath   = flag.String("csv", "", "write a CSV dump to this path")
	chartPath = flag.String("chart", "", "write an HTML chart to this path")
	outerSpec = flag.String("outer", "0:1:0.1", "outer sweep range as min:max:step (gate voltage)")
	innerSpec = flag.String("inner", "", "optional inner sweep range as min:max:step (bias voltage)")
	portPath  = flag.String("port", "", "serial device path; empty runs the simulated instrument")
	baudRate  = flag.Int("baud", 115200, "serial baud rate")
	settle    = flag.Duration("settle", 0, "settling delay before each measurement")
	verbose   = flag.Bool("verbose", false, "log sweep progress")
)

// instrumentInfo feeds the station snapshot stored in the run metadata.
type instrumentInfo struct {
	port string
	baud int
}

func (i instrumentInfo) Snapshot() map[string]any {
	port := i.port
	if port == "" {
		port = "simulated"
	}
	return map[string]any{"port": port, "baud_rate": i.baud}
}

// simHandler models a two-gate transport device: the measured current is a
// smooth function of the gate and bias channels, with a little noise.
func simHandler() func(string) (string, bool) {
	var gate, bias float64
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func(command string) (string, bool) {
		switch {
		case strings.HasPrefix(command, "V="):
			fmt.Sscanf(command, "V=%g", &gate)
			return "", false
		case strings.HasPrefix(command, "B="):
			fmt.Sscanf(command, "B=%g", &bias)
			return "", false
		case command == "V?":
			return fmt.Sprintf("V=%g", gate), true
		case command == "B?":
			return fmt.Sprintf("B=%g", bias), true
		case command == "I?":
			current := math.Tanh(4*gate-2)*(1+bias) + rng.NormFloat64()*0.01
			return fmt.Sprintf("I=%.6f", current), true
		default:
			return "ERR", true
		}
	}
}

func main() {
	flag.Parse()
	log.SetPrefix("sweeprun: ")
	log.SetFlags(0)
	monitoring.Verbose = *verbose

	outer, err := rangespec.Parse(*outerSpec)
	if err != nil {
		log.Fatalf("bad -outer: %v", err)
	}
	outerValues := outer.Values()
	if len(outerValues) == 0 {
		log.Fatalf("-outer %q expands to no points", *outerSpec)
	}

	var innerValues []float64
	if *innerSpec != "" {
		inner, err := rangespec.Parse(*innerSpec)
		if err != nil {
			log.Fatalf("bad -inner: %v", err)
		}
		innerValues = inner.Values()
		if len(innerValues) == 0 {
			log.Fatalf("-inner %q expands to no points", *innerSpec)
		}
	}

	mux, err := openInstrument()
	if err != nil {
		log.Fatalf("opening instrument: %v", err)
	}
	defer mux.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	gate := mux.Param(instrument.ParamSpec{
		Name: "gate", Label: "Gate voltage", Unit: "V", GetCmd: "V?", SetCmd: "V=",
	})
	bias := mux.Param(instrument.ParamSpec{
		Name: "bias", Label: "Bias voltage", Unit: "V", GetCmd: "B?", SetCmd: "B=",
	})
	current := mux.Param(instrument.ParamSpec{
		Name: "current", Label: "Drain current", Unit: "uA", GetCmd: "I?",
	})

	ds, err := dataset.NewSQLite(*dbPath, *runName)
	if err != nil {
		log.Fatalf("opening dataset: %v", err)
	}
	defer ds.Close()

	station := param.NewStation("sweeprun")
	station.Add("source", instrumentInfo{port: *portPath, baud: *baudRate})

	err = measure.Run(*runName, ds, func(m *measure.Session) error {
		outerSweep := m.Sweep(measure.ParameterValues(gate, measure.Values(outerValues...)), measure.SweepRestore())
		for outerSweep.Next() {
			if len(innerValues) == 0 {
				if err := settleAndMeasure(m, current); err != nil {
					return err
				}
				continue
			}
			innerSweep := m.Sweep(measure.ParameterValues(bias, measure.Values(innerValues...)), measure.SweepRestore())
			for innerSweep.Next() {
				if err := settleAndMeasure(m, current); err != nil {
					return err
				}
			}
			if err := innerSweep.Err(); err != nil {
				return err
			}
		}
		return outerSweep.Err()
	}, measure.WithStation(station))
	if err != nil {
		log.Fatalf("sweep failed: %v", err)
	}

	count, err := ds.ResultCount()
	if err != nil {
		log.Fatalf("counting results: %v", err)
	}
	log.Printf("run %s: %d results persisted to %s", ds.RunID(), count, *dbPath)

	for _, s := range export.Summaries(ds) {
		log.Printf("%-24s n=%-5d mean=%.4g std=%.4g min=%.4g max=%.4g",
			s.ArrayID, s.Points, s.Mean, s.Std, s.Min, s.Max)
	}

	if *csvPath != "" {
		if err := writeFile(*csvPath, func(f *os.File) error {
			return export.WriteCSV(f, ds)
		}); err != nil {
			log.Fatalf("writing CSV: %v", err)
		}
		log.Printf("wrote %s", *csvPath)
	}

	if *chartPath != "" {
		if err := writeFile(*chartPath, func(f *os.File) error {
			return export.RenderChart(f, ds, *runName)
		}); err != nil {
			log.Fatalf("writing chart: %v", err)
		}
		log.Printf("wrote %s", *chartPath)
	}
}

func settleAndMeasure(m *measure.Session, p *param.Parameter) error {
	if *settle > 0 {
		time.Sleep(*settle)
	}
	_, err := m.Measure(p)
	return err
}

// openInstrument returns a mux over either a real serial port or the
// simulated device.
func openInstrument() (*instrument.Mux[instrument.Porter], error) {
	if *portPath == "" {
		log.Printf("no -port given, using simulated instrument")
		var port instrument.Porter = instrument.NewMockPort(simHandler())
		return instrument.NewMux(port), nil
	}

	opts := instrument.PortOptions{BaudRate: *baudRate}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	rawPort, err := serial.Open(*portPath, mode)
	if err != nil {
		return nil, err
	}
	var port instrument.Porter = rawPort
	return instrument.NewMux(port), nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
