// Package uba is a client for the Umweltbundesamt air data API (v2). It
// resolves component and network codes, lists stations and fetches annual
// balances, and assembles them into a station table.
package uba

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/airmap/internal/config"
	"github.com/sells-group/airmap/internal/fetcher"
	"github.com/sells-group/airmap/internal/model"
)

// Client talks to one API base URL.
type Client struct {
	base string
	lang string
	f    fetcher.Fetcher
	log  *zap.Logger
}

// New builds a client. A nil f gets an HTTP fetcher configured from cfg.
func New(cfg config.UBAConfig, f fetcher.Fetcher) *Client {
	if f == nil {
		f = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  "airmap/1.0",
			Timeout:    time.Duration(cfg.TimeoutSecs) * time.Second,
			MaxRetries: cfg.MaxRetries,
			RatePerSec: cfg.RatePerSec,
		})
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		lang: lang,
		f:    f,
		log:  zap.L().With(zap.String("component", "uba")),
	}
}

// envelope is the common response shape. Some endpoints put rows under
// "data", the components endpoint puts them at the top level.
type envelope map[string]json.RawMessage

func (e envelope) indices() []string {
	var idx []string
	if raw, ok := e["indices"]; ok {
		_ = json.Unmarshal(raw, &idx)
	}
	return idx
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (envelope, error) {
	if params == nil {
		params = url.Values{}
	}
	if params.Get("lang") == "" {
		params.Set("lang", c.lang)
	}
	u := c.base + endpoint + "?" + params.Encode()
	c.log.Debug("uba: request", zap.String("url", u))

	var env envelope
	if err := c.f.GetJSON(ctx, u, &env); err != nil {
		return nil, eris.Wrapf(err, "uba: get %s", endpoint)
	}
	return env, nil
}

// dataRows decodes "data" as either an object of rows or an array of rows.
// Object rows come back in key order.
func dataRows(env envelope) ([][]any, error) {
	raw, ok := env["data"]
	if !ok {
		return nil, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		rows := make([][]any, 0, len(list))
		for _, r := range list {
			row, err := asRow(r)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		return rows, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, eris.Wrap(err, "uba: decode data")
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		row, err := asRow(obj[k])
		if err != nil {
			return nil, eris.Wrapf(err, "uba: row %s", k)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ComponentID resolves a component code such as "NO2" to its numeric id.
func (c *Client) ComponentID(ctx context.Context, code string) (int, error) {
	env, err := c.get(ctx, "/components/json", nil)
	if err != nil {
		return 0, err
	}
	var available []string
	for key, raw := range env {
		if key == "indices" || key == "count" || key == "data" {
			continue
		}
		row, err := asRow(raw)
		if err != nil || len(row) < 2 {
			continue
		}
		rowCode := asString(row[1])
		available = append(available, rowCode)
		if strings.EqualFold(rowCode, code) {
			if id, ok := asInt(row[0]); ok {
				return id, nil
			}
		}
	}

	// some deployments only answer with the code index
	env, err = c.get(ctx, "/components/json", url.Values{"index": {"code"}})
	if err == nil {
		if id, ok := idFromCodeIndex(env, code); ok {
			return id, nil
		}
	}
	sort.Strings(available)
	return 0, model.NewConfigError("uba", "component %q not found (available: %s)", code, strings.Join(available, ", "))
}

// NetworkID resolves a measuring network code such as "BY".
func (c *Client) NetworkID(ctx context.Context, code string) (int, error) {
	env, err := c.get(ctx, "/networks/json", url.Values{"index": {"code"}})
	if err != nil {
		return 0, err
	}
	if id, ok := idFromCodeIndex(env, code); ok {
		return id, nil
	}
	return 0, model.NewConfigError("uba", "network %q not found", code)
}

func idFromCodeIndex(env envelope, code string) (int, bool) {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(env["data"], &data); err != nil {
		return 0, false
	}
	raw, ok := data[code]
	if !ok {
		return 0, false
	}
	row, err := asRow(raw)
	if err != nil {
		return 0, false
	}
	return asInt(cell(row, 0))
}

// StationInfo is one row of the stations endpoint.
type StationInfo struct {
	ID          int
	Code        string
	Name        string
	Lon, Lat    float64
	NetworkID   int
	NetworkCode string
}

// Stations lists all stations. Rows without usable coordinates are dropped.
func (c *Client) Stations(ctx context.Context) ([]StationInfo, error) {
	env, err := c.get(ctx, "/stations/json", nil)
	if err != nil {
		return nil, err
	}
	idx := env.indices()
	iID := indexOf(idx, "station id", 0)
	iCode := indexOf(idx, "station code", 1)
	iName := indexOf(idx, "station name", 2)
	iLon := indexOf(idx, "station longitude", 7)
	iLat := indexOf(idx, "station latitude", 8)
	iNet := indexOf(idx, "network id", 9)
	iNetCode := indexOf(idx, "network code", 12)

	rows, err := dataRows(env)
	if err != nil {
		return nil, err
	}
	out := make([]StationInfo, 0, len(rows))
	var dropped int
	for _, row := range rows {
		id, okID := asInt(cell(row, iID))
		lon, okLon := asFloat(cell(row, iLon))
		lat, okLat := asFloat(cell(row, iLat))
		if !okID || !okLon || !okLat {
			dropped++
			continue
		}
		net, _ := asInt(cell(row, iNet))
		out = append(out, StationInfo{
			ID:          id,
			Code:        asString(cell(row, iCode)),
			Name:        asString(cell(row, iName)),
			Lon:         lon,
			Lat:         lat,
			NetworkID:   net,
			NetworkCode: asString(cell(row, iNetCode)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if dropped > 0 {
		c.log.Debug("uba: dropped stations without coordinates", zap.Int("dropped", dropped))
	}
	return out, nil
}

// AnnualBalance is one station's annual mean.
type AnnualBalance struct {
	StationID int
	Value     model.Value
}

// AnnualBalances fetches the annual means of a component for one year.
// Rows have either 3 columns (station, value, transgression type) or the 5
// the indices announce (station, component, year, value, transgression).
func (c *Client) AnnualBalances(ctx context.Context, componentID, year int) ([]AnnualBalance, error) {
	env, err := c.get(ctx, "/annualbalances/json", url.Values{
		"component": {strconv.Itoa(componentID)},
		"year":      {strconv.Itoa(year)},
	})
	if err != nil {
		return nil, err
	}
	rows, err := dataRows(env)
	if err != nil {
		return nil, err
	}
	idx := env.indices()

	out := make([]AnnualBalance, 0, len(rows))
	for _, row := range rows {
		iValue := 1
		if len(row) > 3 {
			iValue = indexOf(idx, "value", 3)
		}
		id, ok := asInt(cell(row, 0))
		if !ok {
			continue
		}
		v := model.Undefined()
		if f, ok := asFloat(cell(row, iValue)); ok {
			v = model.Defined(f)
		}
		out = append(out, AnnualBalance{StationID: id, Value: v})
	}
	return out, nil
}

// FetchStationTable collects the stations of one network and their annual
// means of component for each year. Points are lon/lat (EPSG:4326).
func (c *Client) FetchStationTable(ctx context.Context, network, component string, years []int) (*model.StationTable, error) {
	if len(years) == 0 {
		return nil, model.NewConfigError("uba", "no years to fetch")
	}
	componentID, err := c.ComponentID(ctx, component)
	if err != nil {
		return nil, err
	}
	networkID, err := c.NetworkID(ctx, network)
	if err != nil {
		return nil, err
	}
	all, err := c.Stations(ctx)
	if err != nil {
		return nil, err
	}

	table := &model.StationTable{}
	codeByID := make(map[int]string)
	for _, s := range all {
		if s.NetworkID != networkID && !strings.EqualFold(s.NetworkCode, network) {
			continue
		}
		code := s.Code
		if code == "" {
			code = strconv.Itoa(s.ID)
		}
		codeByID[s.ID] = code
		table.Stations = append(table.Stations, model.Station{
			Code: code, Name: s.Name, Network: network,
			Point: []float64{s.Lon, s.Lat},
		})
	}
	if len(table.Stations) == 0 {
		return nil, model.NewConfigError("uba", "network %q has no stations", network)
	}

	perYear := make([][]model.Reading, len(years))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for i, year := range years {
		g.Go(func() error {
			balances, err := c.AnnualBalances(gctx, componentID, year)
			if err != nil {
				return eris.Wrapf(err, "uba: annual balances %d", year)
			}
			for _, b := range balances {
				code, ok := codeByID[b.StationID]
				if !ok {
					continue
				}
				perYear[i] = append(perYear[i], model.Reading{
					StationCode: code, Year: year, Component: component, Value: b.Value,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, rs := range perYear {
		table.Readings = append(table.Readings, rs...)
	}

	c.log.Info("uba: station table fetched",
		zap.String("network", network),
		zap.String("component", component),
		zap.Int("stations", len(table.Stations)),
		zap.Int("readings", len(table.Readings)),
	)
	return table, nil
}
