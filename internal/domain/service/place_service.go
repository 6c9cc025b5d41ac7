package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"guidebook/internal/domain/entity"
)

// PlaceLookup geocodes free text and coordinates. Results only prefill a
// quote location; nothing is persisted.
type PlaceLookup interface {
	Search(ctx context.Context, query string, limit int) ([]entity.Place, error)
	Reverse(ctx context.Context, lat, lon float64) (*entity.Place, error)
}

type nominatimPlaceLookup struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

func NewNominatimPlaceLookup(baseURL string) PlaceLookup {
	return &nominatimPlaceLookup{
		baseURL:    baseURL,
		userAgent:  "guidebook/1.0",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

func (p nominatimPlace) toPlace() entity.Place {
	lat, _ := strconv.ParseFloat(p.Lat, 64)
	lon, _ := strconv.ParseFloat(p.Lon, 64)

	city := p.Address.City
	if city == "" {
		city = p.Address.Town
	}
	if city == "" {
		city = p.Address.Village
	}

	return entity.Place{
		DisplayName: p.DisplayName,
		City:        city,
		State:       p.Address.State,
		Country:     p.Address.Country,
		Lat:         lat,
		Lon:         lon,
	}
}

func (l *nominatimPlaceLookup) Search(ctx context.Context, query string, limit int) ([]entity.Place, error) {
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", strconv.Itoa(limit))

	var raw []nominatimPlace
	if err := l.get(ctx, "/search", params, &raw); err != nil {
		return nil, err
	}

	places := make([]entity.Place, 0, len(raw))
	for _, r := range raw {
		places = append(places, r.toPlace())
	}
	return places, nil
}

func (l *nominatimPlaceLookup) Reverse(ctx context.Context, lat, lon float64) (*entity.Place, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")

	var raw nominatimPlace
	if err := l.get(ctx, "/reverse", params, &raw); err != nil {
		return nil, err
	}
	place := raw.toPlace()
	return &place, nil
}

func (l *nominatimPlaceLookup) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("place lookup returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %v", err)
	}
	return nil
}
