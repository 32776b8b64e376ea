package dexcom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"glucolog/reporter/defs"

	"go.uber.org/zap"
)

const (
	appID            = "d89443d2-327c-4a6f-89e5-496bbb0317db"
	baseUrl          = "https://shareous1.dexcom.com/ShareWebServices/Services"
	loginEndpoint    = "General/LoginPublisherAccountByName"
	readingsEndpoint = "Publisher/ReadPublisherLatestGlucoseValues"

	// One day's worth.
	MinuteLimit = 1440
	CountLimit  = 288
)

type Client struct {
	client      *http.Client
	logger      *zap.Logger
	accountName string
	password    string
	sessionID   string
}

type Source interface {
	Readings(ctx context.Context, minutes, maxCount int) ([]defs.Measurement, error)
}

type LoginRequest struct {
	AccountName   string `json:"accountName"`
	Password      string `json:"password"`
	ApplicationID string `json:"applicationId"`
}

type Reading struct {
	WT          string  `json:"WT"` // Not quite sure what this is.
	SystemTime  string  `json:"ST"`
	DisplayTime string  `json:"DT"`
	Value       float64 `json:"Value"`
	Trend       string  `json:"Trend"`
}

func New(accountName, password string, logger *zap.Logger) *Client {
	return &Client{
		client:      &http.Client{},
		logger:      logger,
		accountName: accountName,
		password:    password,
	}
}

// Readings fetches readings from Dexcom's Share API as measurements in mg/dL,
// oldest first. Automatically creates a new session when it expires.
func (c *Client) Readings(ctx context.Context, minutes, maxCount int) ([]defs.Measurement, error) {
	ms, err := c.readings(ctx, minutes, maxCount)
	if err == nil {
		return ms, nil
	}
	c.logger.Debug("unable to fetch readings, restarting session", zap.Error(err))

	if _, err = c.CreateSession(ctx); err != nil {
		return nil, err
	}
	return c.readings(ctx, minutes, maxCount)
}

func (c *Client) CreateSession(ctx context.Context) (string, error) {
	lreq := &LoginRequest{
		AccountName:   c.accountName,
		Password:      c.password,
		ApplicationID: appID,
	}

	b, err := json.Marshal(lreq)
	if err != nil {
		return "", fmt.Errorf("unable to encode login request: %w", err)
	}

	c.logger.Debug("making login request for sessionID",
		zap.String("account", c.accountName),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseUrl+"/"+loginEndpoint, bytes.NewBuffer(b))
	if err != nil {
		return "", fmt.Errorf("unable to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("unable to login: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("unable to read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unable to login: status %d: %s", resp.StatusCode, body)
	}
	c.sessionID = strings.Trim(string(body), "\"")

	c.logger.Debug("successfully obtained sessionID")

	return c.sessionID, nil
}

func (c *Client) readings(ctx context.Context, minutes, maxCount int) ([]defs.Measurement, error) {
	if minutes > MinuteLimit || maxCount > CountLimit {
		return nil, fmt.Errorf("window too large: minutes %d, maxCount %d", minutes, maxCount)
	}

	params := url.Values{
		"sessionId": {c.sessionID},
		"minutes":   {strconv.Itoa(minutes)},
		"maxCount":  {strconv.Itoa(maxCount)},
	}

	c.logger.Debug("making fetch request",
		zap.Int("minutes", minutes),
		zap.Int("maximum count", maxCount),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseUrl+"/"+readingsEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create readings request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch readings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unable to fetch readings: status %d", resp.StatusCode)
	}

	var readings []*Reading
	if err := json.NewDecoder(resp.Body).Decode(&readings); err != nil {
		return nil, fmt.Errorf("unable to decode readings: %w", err)
	}

	c.logger.Debug("received readings from share API",
		zap.Int("count", len(readings)),
	)

	ms := make([]defs.Measurement, len(readings))
	for i, r := range readings {
		m, err := transform(r)
		if err != nil {
			return nil, err
		}
		ms[len(readings)-i-1] = m // Reverses list, so latest is last.
	}

	return ms, nil
}

// transform keeps minute resolution, like the meter exports.
func transform(r *Reading) (defs.Measurement, error) {
	if len(r.WT) < 5 {
		return defs.Measurement{}, fmt.Errorf("unable to parse reading time %q", r.WT)
	}
	parsedTime := strings.Trim(r.WT[4:], "()")
	unix, err := strconv.ParseInt(parsedTime, 10, 64)
	if err != nil {
		return defs.Measurement{}, fmt.Errorf("unable to parse reading time %q: %w", r.WT, err)
	}

	return defs.Measurement{
		Time:  time.UnixMilli(unix).Truncate(time.Minute),
		Value: defs.Float(r.Value),
	}, nil
}

// Days groups ms by calendar day in loc.
func Days(ms []defs.Measurement, loc *time.Location) map[string]*defs.Day {
	days := make(map[string]*defs.Day)
	for _, m := range ms {
		m.Time = m.Time.In(loc)
		date := m.Time.Format(defs.DateLayout)
		day, ok := days[date]
		if !ok {
			day = &defs.Day{
				Date:               date,
				Measurements:       []defs.Measurement{},
				HighGlucosePeriods: []defs.HighGlucosePeriod{},
			}
			days[date] = day
		}
		day.Measurements = append(day.Measurements, m)
	}
	return days
}
