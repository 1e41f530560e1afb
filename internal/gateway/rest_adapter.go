package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lazywh/lazywh/internal/models"
)

// ErrNoAPIBase is returned when no REST base URL is configured
var ErrNoAPIBase = errors.New("no api base configured")

// RESTAdapter lists warehouses from the backend REST API
type RESTAdapter struct {
	// BaseURL is the API root, e.g. https://host/api
	BaseURL string
	Token   string

	Client *http.Client

	// Cached result
	mu          sync.RWMutex
	last        []models.Warehouse
	lastFetched time.Time
	lastError   error
}

// NewRESTAdapter creates an adapter with a bounded HTTP client
func NewRESTAdapter(baseURL, token string) *RESTAdapter {
	return &RESTAdapter{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ListWarehouses runs GET <base>/warehouses and caches the result
func (a *RESTAdapter) ListWarehouses(ctx context.Context) ([]models.Warehouse, error) {
	warehouses, err := a.fetch(ctx)
	if err != nil {
		a.mu.Lock()
		a.lastError = err
		a.mu.Unlock()
		return nil, err
	}

	a.mu.Lock()
	a.last = warehouses
	a.lastFetched = time.Now()
	a.lastError = nil
	a.mu.Unlock()

	return warehouses, nil
}

func (a *RESTAdapter) fetch(ctx context.Context) ([]models.Warehouse, error) {
	base := strings.TrimRight(a.BaseURL, "/")
	if base == "" {
		return nil, ErrNoAPIBase
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/warehouses", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list warehouses: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("list warehouses: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var warehouses []models.Warehouse
	if err := json.NewDecoder(resp.Body).Decode(&warehouses); err != nil {
		return nil, fmt.Errorf("failed to parse warehouses JSON: %w", err)
	}

	return warehouses, nil
}

// Cached returns the last fetched list without making a new request
func (a *RESTAdapter) Cached() []models.Warehouse {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Age returns how old the cached list is
func (a *RESTAdapter) Age() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastFetched.IsZero() {
		return 0
	}
	return time.Since(a.lastFetched)
}

// LastError returns the last error encountered
func (a *RESTAdapter) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastError
}

// StaticWarehouses serves a fixed list, used for mock mode and for
// warehouses declared in the config file
type StaticWarehouses []models.Warehouse

// ListWarehouses returns a copy of the list
func (s StaticWarehouses) ListWarehouses(context.Context) ([]models.Warehouse, error) {
	return append([]models.Warehouse(nil), s...), nil
}
