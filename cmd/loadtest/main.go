package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	idempotencyHeader = "Idempotency-Key"
	defaultPrice      = int64(12500)
	defaultQty        = 1
	statusTransport   = "transport_error"
)

type loadMode string

const (
	modeBook       loadMode = "book"
	modeBookStatus loadMode = "book-status"
	modeBookReplay loadMode = "book-replay"
)

var segmentListingTypes = map[string]string{
	"flights": "flight",
	"hotels":  "hotel",
	"cars":    "car",
}

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	replayRate  int
	segment     string
	capacity    int
	priceMinor  int64
	quantity    int
	currency    string
	userTag     string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

func (c *collector) record(method string, latency time.Duration, code string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{
			codes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if success {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) snapshot(name string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[name]
	if !ok {
		return methodReport{}, false
	}

	codesCopy := make(map[string]int64, len(stats.codes))
	for code, count := range stats.codes {
		codesCopy[code] = count
	}

	return methodReport{
		Calls:     stats.calls,
		Success:   stats.success,
		Failed:    stats.failed,
		ErrorRate: ratio(stats.failed, stats.calls),
		Codes:     codesCopy,
		LatencyMs: buildLatencySummary(stats.latencies),
	}, true
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	scenarioStats := c.methods["scenario"]
	if scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.addr, "addr", "http://localhost:8080", "inventory service base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 20, "number of pooled HTTP connections per host")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeBook), "load mode: book | book-status | book-replay")
	flag.IntVar(&cfg.replayRate, "replay-rate", 0, "idempotent replay probability in percent for book-status mode (0..100)")
	flag.StringVar(&cfg.segment, "segment", "flights", "listing segment: flights | hotels | cars")
	flag.IntVar(&cfg.capacity, "capacity", 1_000_000, "capacity of the listing seeded before the run")
	flag.Int64Var(&cfg.priceMinor, "price-minor", defaultPrice, "listing unit price in minor units")
	flag.IntVar(&cfg.quantity, "quantity", defaultQty, "units booked per scenario")
	flag.StringVar(&cfg.currency, "currency", "USD", "listing currency")
	flag.StringVar(&cfg.userTag, "user-tag", "load", "user id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return cfg, errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.capacity <= 0 {
		return cfg, errors.New("capacity must be > 0")
	}
	if cfg.priceMinor <= 0 {
		return cfg, errors.New("price-minor must be > 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	if cfg.replayRate < 0 || cfg.replayRate > 100 {
		return cfg, errors.New("replay-rate must be between 0 and 100")
	}
	if _, ok := segmentListingTypes[strings.TrimSpace(cfg.segment)]; !ok {
		return cfg, fmt.Errorf("unsupported segment: %s", cfg.segment)
	}
	cfg.segment = strings.TrimSpace(cfg.segment)
	if strings.TrimSpace(cfg.currency) == "" {
		return cfg, errors.New("currency is required")
	}
	if strings.TrimSpace(cfg.userTag) == "" {
		return cfg, errors.New("user-tag is required")
	}
	cfg.addr = strings.TrimRight(strings.TrimSpace(cfg.addr), "/")
	if cfg.addr == "" {
		return cfg, errors.New("addr is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeBook:
		return modeBook, nil
	case modeBookStatus:
		return modeBookStatus, nil
	case modeBookReplay:
		return modeBookReplay, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// apiClient выполняет HTTP-запросы к inventory-сервису поверх общего пула соединений.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, timeout time.Duration, connections int) *apiClient {
	transport := &http.Transport{
		MaxIdleConns:        connections,
		MaxIdleConnsPerHost: connections,
		IdleConnTimeout:     90 * time.Second,
	}
	return &apiClient{
		base: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (c *apiClient) do(ctx context.Context, method, path, key string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, payload, nil
}

type createListingRequest struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	Capacity   int32  `json:"capacity"`
	PriceMinor int64  `json:"price_minor"`
	Currency   string `json:"currency"`
}

type createBookingRequest struct {
	UserID     string    `json:"user_id"`
	Quantity   int32     `json:"quantity"`
	TravelDate time.Time `json:"travel_date"`
}

type bookingResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := newAPIClient(cfg.addr, cfg.timeout, cfg.connections)

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	listingID, err := seedListing(client, cfg, runID)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to seed listing: %v\n", err)
		os.Exit(1)
	}

	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(client, cfg, listingID, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func seedListing(client *apiClient, cfg config, runID string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	req := createListingRequest{
		ID:         fmt.Sprintf("lt-listing-%s", runID),
		Type:       segmentListingTypes[cfg.segment],
		Name:       "loadtest listing",
		Capacity:   int32(cfg.capacity),
		PriceMinor: cfg.priceMinor,
		Currency:   cfg.currency,
	}

	status, payload, err := client.do(ctx, http.MethodPost, "/api/v1/listings", "", req)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d: %s", status, strings.TrimSpace(string(payload)))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("listing response returned empty id")
	}
	return created.ID, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(
	client *apiClient,
	cfg config,
	listingID string,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioCode := "200"
	scenarioOK := true
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioCode, scenarioOK)
	}()

	bookingReq := createBookingRequest{
		UserID:     fmt.Sprintf("%s-%s-%d", cfg.userTag, runID, index),
		Quantity:   int32(cfg.quantity),
		TravelDate: time.Now().AddDate(0, 0, 30+index%30).Truncate(24 * time.Hour),
	}

	bookingPath := fmt.Sprintf("/api/v1/%s/%s/bookings", cfg.segment, listingID)
	createKey := fmt.Sprintf("lt-book-%s-%d", runID, index)

	booking, code, err := callCreateBooking(client, cfg.timeout, bookingPath, bookingReq, createKey, col)
	if err != nil {
		scenarioCode = code
		scenarioOK = false
		return err
	}

	if cfg.mode == modeBookReplay || (cfg.mode == modeBookStatus && shouldReplayScenario(index, cfg.replayRate)) {
		if _, code, err := callReplayBooking(client, cfg.timeout, bookingPath, bookingReq, createKey, col); err != nil {
			scenarioCode = code
			scenarioOK = false
			return err
		}
	}

	if cfg.mode == modeBookStatus || cfg.mode == modeBookReplay {
		if code, err := callGetBooking(client, cfg.timeout, booking.BookingID, col); err != nil {
			scenarioCode = code
			scenarioOK = false
			return err
		}
	}

	return nil
}

func callCreateBooking(
	client *apiClient,
	timeout time.Duration,
	path string,
	req createBookingRequest,
	key string,
	col *collector,
) (bookingResponse, string, error) {
	start := time.Now()
	booking, code, err := postBooking(client, timeout, path, req, key)
	col.record("CreateBooking", time.Since(start), code, err == nil)
	return booking, code, err
}

func callReplayBooking(
	client *apiClient,
	timeout time.Duration,
	path string,
	req createBookingRequest,
	key string,
	col *collector,
) (bookingResponse, string, error) {
	start := time.Now()
	booking, code, err := postBooking(client, timeout, path, req, key)
	col.record("ReplayBooking", time.Since(start), code, err == nil)
	return booking, code, err
}

func postBooking(
	client *apiClient,
	timeout time.Duration,
	path string,
	req createBookingRequest,
	key string,
) (bookingResponse, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	status, payload, err := client.do(ctx, http.MethodPost, path, key, req)
	if err != nil {
		return bookingResponse{}, statusTransport, err
	}
	code := statusLabel(status)
	if status != http.StatusCreated {
		return bookingResponse{}, code, fmt.Errorf("unexpected status %d: %s", status, strings.TrimSpace(string(payload)))
	}

	var booking bookingResponse
	if err := json.Unmarshal(payload, &booking); err != nil {
		return bookingResponse{}, code, err
	}
	if booking.BookingID == "" {
		return bookingResponse{}, code, errors.New("booking response returned empty booking id")
	}
	return booking, code, nil
}

func callGetBooking(
	client *apiClient,
	timeout time.Duration,
	bookingID string,
	col *collector,
) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	status, payload, err := client.do(ctx, http.MethodGet, "/api/v1/bookings/"+bookingID, "", nil)
	elapsed := time.Since(start)
	if err != nil {
		col.record("GetBooking", elapsed, statusTransport, false)
		return statusTransport, err
	}

	code := statusLabel(status)
	ok := status == http.StatusOK
	col.record("GetBooking", elapsed, code, ok)
	if !ok {
		return code, fmt.Errorf("unexpected status %d: %s", status, strings.TrimSpace(string(payload)))
	}
	return code, nil
}

func statusLabel(status int) string {
	return fmt.Sprintf("%d", status)
}

func shouldReplayScenario(index, replayRate int) bool {
	if replayRate <= 0 {
		return false
	}
	if replayRate >= 100 {
		return true
	}
	return index%100 < replayRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
