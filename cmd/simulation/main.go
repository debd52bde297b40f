package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/invest-api/internal/auth"
	"github.com/ksred/invest-api/internal/distribution"
	"github.com/ksred/invest-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	numDailyPositions  = 5
	numHourlyPositions = 10
	serverAddress      = "http://localhost:8080"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median and 95th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p95 = rs.durations[p95idx]

	return
}

// envelope is the standard API response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// simulationClient handles HTTP communication with the brokerage API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":       {name: "Authentication"},
			"open":       {name: "Open Position"},
			"distribute": {name: "Run Distribution"},
			"preview":    {name: "Preview Distribution"},
			"balance":    {name: "Get Balance"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", err
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return "", err
	}

	return result.Token, nil
}

// do sends an authenticated request and decodes the response envelope
func (sc *simulationClient) do(method, path string, payload interface{}, statKey string) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		sc.stats[statKey].addDuration(time.Since(start))
	}()

	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sc.authToken)
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.New().String())
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats[statKey].failures++
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats[statKey].failures++
		return nil, fmt.Errorf("%s %s failed with status %d", method, path, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// openPosition opens a back-dated position so the distribution run has
// elapsed periods to backfill
func (sc *simulationClient) openPosition(kind string, periodsAgo int) (*types.Position, error) {
	start := time.Now().Add(-time.Duration(periodsAgo) * kindLength(kind))
	payload := map[string]interface{}{
		"kind":            kind,
		"principal":       1000.0,
		"rate_per_period": 0.02,
		"total_periods":   10,
		"start_time":      start.Format(time.RFC3339),
	}

	data, err := sc.do(http.MethodPost, "/api/v1/positions", payload, "open")
	if err != nil {
		return nil, err
	}

	var position types.Position
	if err := json.Unmarshal(data, &position); err != nil {
		return nil, err
	}
	return &position, nil
}

// runDistribution triggers a manual distribution run for the kind
func (sc *simulationClient) runDistribution(kind string) (*distribution.DetailedSummary, error) {
	data, err := sc.do(http.MethodPost, "/api/v1/internal/distributions/"+kind+"/run", nil, "distribute")
	if err != nil {
		return nil, err
	}

	var summary distribution.DetailedSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// previewDistribution fetches the read-only eligibility preview
func (sc *simulationClient) previewDistribution(kind string) ([]distribution.PendingPreview, error) {
	data, err := sc.do(http.MethodGet, "/api/v1/internal/distributions/"+kind+"/preview", nil, "preview")
	if err != nil {
		return nil, err
	}

	var preview []distribution.PendingPreview
	if err := json.Unmarshal(data, &preview); err != nil {
		return nil, err
	}
	return preview, nil
}

// getBalance fetches the authenticated client's balance
func (sc *simulationClient) getBalance() (float64, error) {
	data, err := sc.do(http.MethodGet, "/api/v1/account/balance", nil, "balance")
	if err != nil {
		return 0, err
	}

	var balance types.Balance
	if err := json.Unmarshal(data, &balance); err != nil {
		return 0, err
	}
	return balance.TotalAmount, nil
}

func kindLength(kind string) time.Duration {
	if kind == types.KindHourly {
		return time.Hour
	}
	return 24 * time.Hour
}

// printStats logs the collected per-route statistics
func (sc *simulationClient) printStats() {
	for _, rs := range sc.stats {
		if rs.totalCalls == 0 {
			continue
		}
		min, max, mean, median, p95 := rs.calculate()
		log.Info().
			Str("route", rs.name).
			Int("calls", rs.totalCalls).
			Int("failures", rs.failures).
			Dur("min", min).
			Dur("max", max).
			Dur("mean", mean).
			Dur("median", median).
			Dur("p95", p95).
			Msg("route statistics")
	}
}

// main drives an end-to-end distribution scenario against a running server:
// open back-dated positions, run a manual catch-up distribution per kind,
// run it a second time to demonstrate idempotency, and report balances.
func main() {
	sc, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize simulation client")
	}

	log.Info().Msg("opening back-dated positions")
	opened := 0
	for i := 0; i < numDailyPositions; i++ {
		if _, err := sc.openPosition(types.KindDaily, 3+i); err != nil {
			log.Error().Err(err).Msg("failed to open daily position")
			continue
		}
		opened++
	}
	for i := 0; i < numHourlyPositions; i++ {
		if _, err := sc.openPosition(types.KindHourly, 2+i); err != nil {
			log.Error().Err(err).Msg("failed to open hourly position")
			continue
		}
		opened++
	}
	log.Info().Int("opened", opened).Msg("positions opened")

	for _, kind := range []string{types.KindDaily, types.KindHourly} {
		preview, err := sc.previewDistribution(kind)
		if err != nil {
			log.Error().Err(err).Str("kind", kind).Msg("preview failed")
		} else {
			pending := 0
			for _, p := range preview {
				pending += p.PendingPeriods
			}
			log.Info().Str("kind", kind).Int("positions", len(preview)).Int("pending_periods", pending).Msg("eligibility preview")
		}

		first, err := sc.runDistribution(kind)
		if err != nil {
			log.Fatal().Err(err).Str("kind", kind).Msg("distribution run failed")
		}
		log.Info().
			Str("kind", kind).
			Int("positions_processed", first.PositionsProcessed).
			Int("periods_distributed", first.TotalPeriodsDistributed).
			Float64("amount_distributed", first.TotalAmountDistributed).
			Int("positions_completed", first.PositionsCompleted).
			Int("errors", len(first.Errors)).
			Msg("first distribution run")

		// The immediate re-run must credit nothing
		second, err := sc.runDistribution(kind)
		if err != nil {
			log.Fatal().Err(err).Str("kind", kind).Msg("repeat distribution run failed")
		}
		if second.TotalPeriodsDistributed != 0 {
			log.Error().
				Str("kind", kind).
				Int("periods_distributed", second.TotalPeriodsDistributed).
				Msg("repeat run credited periods, idempotency violated")
		} else {
			log.Info().Str("kind", kind).Msg("repeat run credited nothing, idempotency holds")
		}
	}

	balance, err := sc.getBalance()
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch balance")
	} else {
		log.Info().Float64("balance", balance).Msg("final balance")
	}

	sc.printStats()
}
