package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-index-service/internal/models"
)

// AlphaVantageSource is the fallback provider. It pulls the full daily
// series and picks the requested date, or the closest earlier one when the
// exact date is missing. It never supplies a market cap.
type AlphaVantageSource struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewAlphaVantageSource creates the fallback source
func NewAlphaVantageSource(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *AlphaVantageSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AlphaVantageSource{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Name returns the source identifier recorded on observations
func (s *AlphaVantageSource) Name() string {
	return models.SourceAlphaVantage
}

type timeSeriesResponse struct {
	ErrorMessage string                       `json:"Error Message"`
	Note         string                       `json:"Note"`
	TimeSeries   map[string]map[string]string `json:"Time Series (Daily)"`
}

// Fetch retrieves the close for the date from the daily series. When the
// exact date is missing the closest earlier date is used and the returned
// observation carries that fallback date plus an advisory error. Provider
// error payloads become failed observations; only transport failures are
// returned as errors.
func (s *AlphaVantageSource) Fetch(ctx context.Context, symbol string, date time.Time) (*models.Observation, error) {
	endpoint := fmt.Sprintf("%s?function=TIME_SERIES_DAILY&symbol=%s&outputsize=full&apikey=%s",
		s.baseURL, url.QueryEscape(symbol), url.QueryEscape(s.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("network error: failed to build request for %s: %w", symbol, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("network error: status %d for %s", resp.StatusCode, symbol)
	}

	var payload timeSeriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("network error: failed to decode response for %s: %w", symbol, err)
	}

	if payload.ErrorMessage != "" {
		return failedObservation(symbol, date, models.SourceAlphaVantage, payload.ErrorMessage), nil
	}
	if payload.Note != "" {
		return failedObservation(symbol, date, models.SourceAlphaVantage,
			fmt.Sprintf("API rate limit: %s", payload.Note)), nil
	}
	if payload.TimeSeries == nil {
		return failedObservation(symbol, date, models.SourceAlphaVantage, "No time series data available"), nil
	}

	dateStr := date.Format(models.DateFormat)
	if entry, ok := payload.TimeSeries[dateStr]; ok {
		closePrice, err := parseSeriesClose(symbol, dateStr, entry)
		if err != nil {
			return nil, err
		}
		return &models.Observation{
			Symbol:     symbol,
			Date:       date,
			ClosePrice: closePrice,
			Source:     models.SourceAlphaVantage,
		}, nil
	}

	// Exact date missing, walk back to the closest earlier date
	fallback := ""
	for seriesDate := range payload.TimeSeries {
		if seriesDate <= dateStr && seriesDate > fallback {
			fallback = seriesDate
		}
	}
	if fallback == "" {
		return failedObservation(symbol, date, models.SourceAlphaVantage,
			fmt.Sprintf("No data available for %s on or before %s", symbol, dateStr)), nil
	}

	fallbackDate, err := time.Parse(models.DateFormat, fallback)
	if err != nil {
		return failedObservation(symbol, date, models.SourceAlphaVantage,
			fmt.Sprintf("No data available for %s on or before %s", symbol, dateStr)), nil
	}

	closePrice, err := parseSeriesClose(symbol, fallback, payload.TimeSeries[fallback])
	if err != nil {
		return nil, err
	}

	advisory := fmt.Sprintf("Exact date %s not available, using %s", dateStr, fallback)
	s.logger.Debug("using fallback date", "symbol", symbol, "requested", dateStr, "actual", fallback)

	return &models.Observation{
		Symbol:     symbol,
		Date:       fallbackDate,
		ClosePrice: closePrice,
		Source:     models.SourceAlphaVantage,
		Error:      &advisory,
	}, nil
}

func parseSeriesClose(symbol, date string, entry map[string]string) (*decimal.Decimal, error) {
	raw, ok := entry["4. close"]
	if !ok {
		return nil, fmt.Errorf("series entry for %s on %s has no close field", symbol, date)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse close for %s on %s: %w", symbol, date, err)
	}
	return &d, nil
}
