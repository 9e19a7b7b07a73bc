// Package monitoring serves the state of a running simulation over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"reflect"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/sarchlab/hetmem/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Simulation is what the monitor can observe and control.
type Simulation interface {
	CurrentCycle() uint64
	Pause()
	Continue()
	IsPaused() bool

	// Inspect runs f while the simulation state does not change.
	Inspect(f func())
}

// Monitor turns a simulation into a server that can be observed and
// controlled from outside.
type Monitor struct {
	simulation  Simulation
	status      func() any
	components  []sim.Named
	portNumber  int
	openBrowser bool
	profileTime time.Duration

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{profileTime: time.Second}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitor in a web browser.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// WithProfileTime sets how long the CPU is sampled for a profile.
func (m *Monitor) WithProfileTime(d time.Duration) *Monitor {
	m.profileTime = d
	return m
}

// RegisterSimulation sets the simulation to monitor.
func (m *Monitor) RegisterSimulation(s Simulation) {
	m.simulation = s
}

// RegisterStatus sets the function that reports the status of the
// simulation. Its result must be JSON-serializable.
func (m *Monitor) RegisterStatus(status func() any) {
	m.status = status
}

// RegisterComponent registers a component to be monitored.
func (m *Monitor) RegisterComponent(c sim.Named) {
	m.components = append(m.components, c)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        sim.NewID(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the list.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the router that serves the monitor API.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", m.index)
	r.HandleFunc("/api/pause", m.pause).Methods(http.MethodPost)
	r.HandleFunc("/api/continue", m.resume).Methods(http.MethodPost)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/status", m.reportStatus)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

// StartServer serves the monitor in the background and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", fmt.Errorf("start monitor: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err := http.Serve(listener, m.Handler())
		if err != nil && !errors.Is(err, net.ErrClosed) {
			log.Panic(err)
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
		}
	}

	return url, nil
}

var endpoints = []string{
	"/api/pause",
	"/api/continue",
	"/api/now",
	"/api/status",
	"/api/list_components",
	"/api/component/{name}",
	"/api/field/{json}",
	"/api/progress",
	"/api/resource",
	"/api/profile",
}

func (m *Monitor) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, endpoints)
}

func (m *Monitor) simulationOr503(w http.ResponseWriter) Simulation {
	if m.simulation == nil {
		http.Error(w, "no simulation registered",
			http.StatusServiceUnavailable)
	}

	return m.simulation
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	s := m.simulationOr503(w)
	if s == nil {
		return
	}

	s.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) resume(w http.ResponseWriter, _ *http.Request) {
	s := m.simulationOr503(w)
	if s == nil {
		return
	}

	s.Continue()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	s := m.simulationOr503(w)
	if s == nil {
		return
	}

	fmt.Fprintf(w, "{\"now\":%d,\"paused\":%t}",
		s.CurrentCycle(), s.IsPaused())
}

func (m *Monitor) reportStatus(w http.ResponseWriter, _ *http.Request) {
	if m.status == nil {
		http.Error(w, "no status registered", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, m.status())
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	m.serialize(w, component, nil)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	fields := strings.Split(req.FieldName, ".")

	if _, err := walkFields(component, fields); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.serialize(w, component, fields)
}

// serialize writes the component, or the field at entry, while the
// simulation is held still.
func (m *Monitor) serialize(
	w http.ResponseWriter,
	component sim.Named,
	entry []string,
) {
	var (
		buf bytes.Buffer
		err error
	)

	write := func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(component)
		serializer.SetMaxDepth(1)

		if entry != nil {
			if err = serializer.SetEntryPoint(entry); err != nil {
				return
			}
		}

		err = serializer.Serialize(&buf)
	}

	if m.simulation != nil {
		m.simulation.Inspect(write)
	} else {
		write()
	}

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(buf.Bytes())
	dieOnErr(err)
}

type fieldFormatError struct {
	field string
}

func (e fieldFormatError) Error() string {
	return fmt.Sprintf("cannot follow field %q", e.field)
}

// walkFields follows a path of struct field names and slice indexes.
func walkFields(root any, fieldNames []string) (reflect.Value, error) {
	elem := reflect.ValueOf(root)

	for len(fieldNames) > 0 {
		switch elem.Kind() {
		case reflect.Ptr, reflect.Interface:
			if elem.IsNil() {
				return elem, fieldFormatError{fieldNames[0]}
			}

			elem = elem.Elem()
		case reflect.Struct:
			next := elem.FieldByName(fieldNames[0])
			if !next.IsValid() {
				return elem, fieldFormatError{fieldNames[0]}
			}

			elem = next
			fieldNames = fieldNames[1:]
		case reflect.Slice:
			index, err := strconv.Atoi(fieldNames[0])
			if err != nil || index < 0 || index >= elem.Len() {
				return elem, fieldFormatError{fieldNames[0]}
			}

			elem = elem.Index(index)
			fieldNames = fieldNames[1:]
		default:
			return elem, fieldFormatError{fieldNames[0]}
		}
	}

	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}

	return elem, nil
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) sim.Named {
	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	http.Error(w, "Component not found", http.StatusNotFound)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]progressBarRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(m.profileTime)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
