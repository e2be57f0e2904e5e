package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// apiClient wraps the REST calls quantctl makes.
type apiClient struct {
	http *resty.Client
}

func newAPIClient(baseURL string) *apiClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Content-Type", "application/json")
	return &apiClient{http: client}
}

type backtestRequest struct {
	Symbol     string
	Strategy   string
	Params     map[string]string
	Capital    float64
	Commission float64
	Slippage   float64
	From       string
	To         string
}

type liveTradingRequest struct {
	Symbol   string
	Strategy string
	Account  string
	Hours    int
	Quantity string
}

func (c *apiClient) startBacktest(req backtestRequest) error {
	params, err := floatParams(req.Params)
	if err != nil {
		return err
	}
	start, err := time.Parse(time.RFC3339, req.From)
	if err != nil {
		return fmt.Errorf("parse --from: %w", err)
	}
	end, err := time.Parse(time.RFC3339, req.To)
	if err != nil {
		return fmt.Errorf("parse --to: %w", err)
	}
	body := map[string]any{
		"symbol": req.Symbol,
		"strategy": map[string]any{
			"name":       req.Strategy,
			"parameters": params,
		},
		"config": map[string]any{
			"initial_capital": req.Capital,
			"commission_rate": req.Commission,
			"slippage_rate":   req.Slippage,
			"start_date":      start.Format(time.RFC3339),
			"end_date":        end.Format(time.RFC3339),
		},
	}
	return c.post("/api/v1/workflows/backtest", body)
}

func (c *apiClient) startLiveTrading(req liveTradingRequest) error {
	body := map[string]any{
		"strategy":       map[string]any{"name": req.Strategy},
		"account_id":     req.Account,
		"symbol":         req.Symbol,
		"duration_hours": req.Hours,
		"trade_quantity": req.Quantity,
	}
	return c.post("/api/v1/workflows/livetrading", body)
}

func (c *apiClient) startRebalance(account string, value float64, allocations map[string]string) error {
	allocs, err := floatParams(allocations)
	if err != nil {
		return err
	}
	body := map[string]any{
		"account_id":         account,
		"portfolio_value":    value,
		"target_allocations": allocs,
	}
	return c.post("/api/v1/workflows/rebalance", body)
}

func (c *apiClient) startRiskMonitor(account string, hours, interval int) error {
	body := map[string]any{
		"account_id":             account,
		"duration_hours":         hours,
		"check_interval_minutes": interval,
	}
	return c.post("/api/v1/workflows/riskmonitor", body)
}

func (c *apiClient) status(id string) error {
	return c.get("/api/v1/workflows/" + id)
}

func (c *apiClient) list() error {
	return c.get("/api/v1/workflows")
}

func (c *apiClient) post(path string, body any) error {
	resp, err := c.http.R().SetBody(body).Post(path)
	if err != nil {
		return err
	}
	return printResponse(resp.StatusCode(), resp.Body())
}

func (c *apiClient) get(path string) error {
	resp, err := c.http.R().Get(path)
	if err != nil {
		return err
	}
	return printResponse(resp.StatusCode(), resp.Body())
}

func printResponse(status int, body []byte) error {
	var pretty json.RawMessage
	if json.Unmarshal(body, &pretty) == nil {
		indented, err := json.MarshalIndent(pretty, "", "  ")
		if err == nil {
			body = indented
		}
	}
	fmt.Println(string(body))
	if status >= 300 {
		return fmt.Errorf("server returned %d", status)
	}
	return nil
}

func floatParams(in map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s=%s: %w", k, v, err)
		}
		out[k] = f
	}
	return out, nil
}
