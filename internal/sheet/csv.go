package sheet

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// CSVSource reads one CSV export per sheet, named "<sheet>.csv", from a local
// directory or an http(s) base URL. Sheets are loaded lazily on first access
// after each Refresh.
type CSVSource struct {
	base           string
	remote         bool
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration

	ctx    context.Context
	grid   *Grid
	loaded map[string]bool
}

// NewCSV creates a CSV source rooted at base.
func NewCSV(base string, timeout time.Duration, maxRetries int, retryDelayBase time.Duration) *CSVSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &CSVSource{
		base:           base,
		remote:         strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://"),
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		ctx:            context.Background(),
		grid:           NewGrid(),
		loaded:         make(map[string]bool),
	}
}

// Refresh drops cached sheets so the next read sees the latest export.
func (s *CSVSource) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.remote {
		if _, err := os.Stat(s.base); err != nil {
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
	}
	s.ctx = ctx
	s.grid.Clear()
	s.loaded = make(map[string]bool)
	return nil
}

func (s *CSVSource) ReadCell(sheet, addr string) Value {
	if !s.loaded[sheet] {
		s.loaded[sheet] = true
		if err := s.load(sheet); err != nil {
			return Value{}
		}
	}
	return s.grid.ReadCell(sheet, addr)
}

func (s *CSVSource) ReadRange(sheet, start string, rows, cols int) [][]Value {
	return readRange(s.ReadCell, sheet, start, rows, cols)
}

func (s *CSVSource) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func (s *CSVSource) load(sheet string) error {
	rc, err := s.open(sheet)
	if err != nil {
		return err
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse %s.csv: %w", sheet, err)
	}
	for i, record := range records {
		for j, field := range record {
			v := Parse(field)
			if v.IsEmpty() {
				continue
			}
			addr, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				continue
			}
			s.grid.Set(sheet, addr, v)
		}
	}
	return nil
}

func (s *CSVSource) open(sheet string) (io.ReadCloser, error) {
	name := sheet + ".csv"
	if !s.remote {
		return os.Open(filepath.Join(s.base, name))
	}
	u, err := url.JoinPath(s.base, name)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	resp, err := s.doRequest(s.ctx, u)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// doRequest performs a GET with linear-backoff retry on transport and 5xx errors.
func (s *CSVSource) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < s.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/csv")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		} else if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retryDelayBase * time.Duration(i+1)):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
