package tushare

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"resty.dev/v3"

	"futuresync/internal/remote"
)

// Vendor API names.
const (
	apiTradeCal   = "trade_cal"
	apiFutBasic   = "fut_basic"
	apiFutDaily   = "fut_daily"
	apiFutHolding = "fut_holding"
)

// Vendor response codes.
const codeRateLimited = 40203

// Client implements remote.Source over the tushare-style HTTP JSON API:
// every call is a POST of {api_name, token, params, fields} answered by
// {code, msg, data: {fields, items}}.
//
// A conservative token-bucket limiter guards the raw transport as a floor
// under whatever pipeline-level admission control sits above it; the two do
// not share state.
type Client struct {
	token   string
	client  *resty.Client
	limiter *rate.Limiter
	log     *logrus.Entry
}

// NewClient creates a Client. rps caps the transport-level request rate.
func NewClient(token, baseURL string, rps float64, log *logrus.Entry) *Client {
	if rps <= 0 {
		rps = 10
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		token:   token,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log,
	}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.client.Close()
}

type apiRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields,omitempty"`
}

type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string `json:"fields"`
		Items  [][]any  `json:"items"`
	} `json:"data"`
}

// TradingDays implements remote.Source.
func (c *Client) TradingDays(ctx context.Context, exchange, start, end string) ([]string, error) {
	out, err := c.call(ctx, apiTradeCal, map[string]string{
		"exchange":   exchange,
		"start_date": compactDate(start),
		"end_date":   compactDate(end),
		"is_open":    "1",
	}, "cal_date")
	if err != nil {
		return nil, err
	}

	idx := columnIndex(out.Data.Fields, "cal_date")
	if idx < 0 {
		return nil, remote.NewValidationError("trade_cal response missing cal_date column")
	}

	days := make([]string, 0, len(out.Data.Items))
	for _, row := range out.Data.Items {
		if idx >= len(row) {
			continue
		}
		days = append(days, isoDate(fmt.Sprint(row[idx])))
	}
	return days, nil
}

// Contracts implements remote.Source.
func (c *Client) Contracts(ctx context.Context, exchange string) (remote.RecordBatch, error) {
	out, err := c.call(ctx, apiFutBasic, map[string]string{
		"exchange": exchange,
	}, "symbol,name,fut_code,multiplier,per_unit,quote_unit,list_date,delist_date")
	if err != nil {
		return nil, err
	}
	return c.records(out, exchange, map[string]bool{"list_date": true, "delist_date": true}), nil
}

// Daily implements remote.Source.
func (c *Client) Daily(ctx context.Context, exchange, symbol, date string) (remote.RecordBatch, error) {
	params := map[string]string{
		"exchange":   exchange,
		"trade_date": compactDate(date),
	}
	if symbol != "" {
		params["symbol"] = symbol
	}
	out, err := c.call(ctx, apiFutDaily, params,
		"symbol,trade_date,open,high,low,close,settle,vol,amount,oi")
	if err != nil {
		return nil, err
	}
	return c.records(out, exchange, map[string]bool{"trade_date": true}), nil
}

// Holdings implements remote.Source.
func (c *Client) Holdings(ctx context.Context, exchange, symbol, date string) (remote.RecordBatch, error) {
	params := map[string]string{
		"exchange":   exchange,
		"trade_date": compactDate(date),
	}
	if symbol != "" {
		params["symbol"] = symbol
	}
	out, err := c.call(ctx, apiFutHolding, params,
		"symbol,trade_date,broker,vol,vol_chg,long_hld,long_chg,short_hld,short_chg")
	if err != nil {
		return nil, err
	}
	return c.records(out, exchange, map[string]bool{"trade_date": true}), nil
}

// call performs one vendor round trip and classifies failures into the
// remote error taxonomy. An empty items array is a valid empty result.
func (c *Client) call(ctx context.Context, apiName string, params map[string]string, fields string) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out apiResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(apiRequest{APIName: apiName, Token: c.token, Params: params, Fields: fields}).
		SetResult(&out).
		Post("")

	if err != nil {
		if isTimeout(err) {
			return nil, remote.NewTimeoutError(err)
		}
		return nil, remote.NewNetworkError(err)
	}
	if !resp.IsSuccess() {
		return nil, remote.ClassifyHTTPError(resp.StatusCode())
	}
	if out.Code != 0 {
		if out.Code == codeRateLimited || strings.Contains(out.Msg, "rate limit") {
			return nil, remote.NewRateLimitError(http.StatusTooManyRequests)
		}
		return nil, remote.NewClientError(resp.StatusCode(),
			fmt.Sprintf("%s rejected: code %d: %s", apiName, out.Code, out.Msg))
	}

	c.log.WithFields(logrus.Fields{
		"api":  apiName,
		"rows": len(out.Data.Items),
	}).Debug("vendor call succeeded")

	return &out, nil
}

// records maps the columnar response to normalized Records, injecting the
// exchange key and converting the named date columns to ISO form.
func (c *Client) records(out *apiResponse, exchange string, dateCols map[string]bool) remote.RecordBatch {
	batch := make(remote.RecordBatch, 0, len(out.Data.Items))
	for _, row := range out.Data.Items {
		rec := remote.Record{"exchange": exchange}
		for i, col := range out.Data.Fields {
			if i >= len(row) {
				break
			}
			v := row[i]
			if dateCols[col] {
				if s, ok := v.(string); ok {
					v = isoDate(s)
				}
			}
			rec[col] = v
		}
		batch = append(batch, rec)
	}
	return batch
}

func columnIndex(fields []string, name string) int {
	for i, f := range fields {
		if f == name {
			return i
		}
	}
	return -1
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// compactDate converts 2006-01-02 to the vendor's 20060102 form.
func compactDate(iso string) string {
	return strings.ReplaceAll(iso, "-", "")
}

// isoDate converts the vendor's 20060102 form to 2006-01-02. Values already
// in ISO form, or too short to be dates, pass through unchanged.
func isoDate(compact string) string {
	if len(compact) != 8 || strings.Contains(compact, "-") {
		return compact
	}
	return compact[:4] + "-" + compact[4:6] + "-" + compact[6:]
}
