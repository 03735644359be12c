package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-index-service/internal/models"
)

const yahooUserAgent = "Mozilla/5.0 (compatible; stock-index-service/1.0)"

// YahooSource is the primary provider. It reads the daily close from the
// chart endpoint and enriches the observation with market cap, name and
// exchange from the quote endpoint when that succeeds.
type YahooSource struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewYahooSource creates the primary source against the given base URL
func NewYahooSource(baseURL string, timeout time.Duration, logger *slog.Logger) *YahooSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &YahooSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Name returns the source identifier recorded on observations
func (s *YahooSource) Name() string {
	return models.SourceYahoo
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			MarketCap        *float64 `json:"marketCap"`
			LongName         string   `json:"longName"`
			FullExchangeName string   `json:"fullExchangeName"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

// Fetch retrieves the close for the exact date. A day the market was shut
// comes back as a failed observation; transport failures are returned as
// errors so the caller can retry.
func (s *YahooSource) Fetch(ctx context.Context, symbol string, date time.Time) (*models.Observation, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d",
		s.baseURL, url.PathEscape(symbol), date.Unix(), date.AddDate(0, 0, 1).Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build chart request for %s: %w", symbol, err)
	}
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chart for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart request for %s returned status %d", symbol, resp.StatusCode)
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode chart response for %s: %w", symbol, err)
	}

	closePrice := closeForDate(&payload, date)
	if closePrice == nil {
		return failedObservation(symbol, date, models.SourceYahoo, fmt.Sprintf(
			"No price data found for %s on %s, likely weekend or holiday",
			symbol, date.Format(models.DateFormat),
		)), nil
	}

	obs := &models.Observation{
		Symbol:     symbol,
		Date:       date,
		ClosePrice: closePrice,
		Source:     models.SourceYahoo,
	}
	s.attachQuote(ctx, obs)
	return obs, nil
}

// closeForDate finds the candle whose UTC calendar date matches the
// requested date
func closeForDate(payload *chartResponse, date time.Time) *decimal.Decimal {
	want := date.Format(models.DateFormat)
	for _, result := range payload.Chart.Result {
		if len(result.Indicators.Quote) == 0 {
			continue
		}
		closes := result.Indicators.Quote[0].Close
		for i, ts := range result.Timestamp {
			if i >= len(closes) || closes[i] == nil {
				continue
			}
			if time.Unix(ts, 0).UTC().Format(models.DateFormat) != want {
				continue
			}
			d := decimal.NewFromFloat(*closes[i])
			return &d
		}
	}
	return nil
}

// attachQuote fills market cap, name and exchange from the quote endpoint.
// Quote failures are logged and swallowed: a close without a cap is still
// a usable observation.
func (s *YahooSource) attachQuote(ctx context.Context, obs *models.Observation) {
	endpoint := fmt.Sprintf("%s/v7/finance/quote?symbols=%s", s.baseURL, url.QueryEscape(obs.Symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		s.logger.Warn("failed to build quote request", "symbol", obs.Symbol, "error", err)
		return
	}
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("quote lookup failed", "symbol", obs.Symbol, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("quote lookup returned non-OK status", "symbol", obs.Symbol, "status", resp.StatusCode)
		return
	}

	var payload quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		s.logger.Warn("failed to decode quote response", "symbol", obs.Symbol, "error", err)
		return
	}
	if len(payload.QuoteResponse.Result) == 0 {
		return
	}

	quote := payload.QuoteResponse.Result[0]
	if quote.MarketCap != nil {
		d := decimal.NewFromFloat(*quote.MarketCap)
		obs.MarketCap = &d
	}
	if quote.LongName != "" {
		obs.Name = &quote.LongName
	}
	if quote.FullExchangeName != "" {
		obs.Exchange = &quote.FullExchangeName
	}
}
