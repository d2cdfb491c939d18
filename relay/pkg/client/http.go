package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
)

const (
	SubmitPath = "/v1/transactions"
	SlotPath   = "/v1/slot"
)

type HTTPExecutorConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func (cfg *HTTPExecutorConfig) Validate() error {
	if cfg.BaseURL == "" {
		return errors.New("base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return nil
}

// HTTPExecutor submits transactions to a relayd server.
type HTTPExecutor struct {
	base string
	url  string
	http *http.Client
}

var _ Executor = (*HTTPExecutor)(nil)

func NewHTTPExecutor(cfg HTTPExecutorConfig) (*HTTPExecutor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPExecutor{
		base: base,
		url:  base + SubmitPath,
		http: cfg.HTTPClient,
	}, nil
}

// SubmitFailure is a submission the server refused. When the relay program
// raised it, it unwraps to the relay error.
type SubmitFailure struct {
	Status int
	Body   relayapi.SubmitError
}

func (e *SubmitFailure) Error() string {
	if e.Body.Index >= 0 && e.Body.ProgramID != "" {
		return fmt.Sprintf("submit failed (%d): instruction %d (program %s): %s", e.Status, e.Body.Index, e.Body.ProgramID, e.Body.Error)
	}
	return fmt.Sprintf("submit failed (%d): %s", e.Status, e.Body.Error)
}

func (e *SubmitFailure) StatusCode() int { return e.Status }

func (e *SubmitFailure) Unwrap() error {
	if e.Body.Class == "" || e.Body.Class == relayapi.ClassExternal.String() {
		return nil
	}
	if rerr, ok := relayapi.ErrorFromCode(e.Body.Code); ok {
		return rerr
	}
	return nil
}

func (e *HTTPExecutor) RecentSlot(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.base+SlotPath, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to get slot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return 0, &SubmitFailure{Status: resp.StatusCode, Body: relayapi.SubmitError{Error: strings.TrimSpace(string(raw)), Index: -1}}
	}
	var out relayapi.SlotResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode slot: %w", err)
	}
	return out.Slot, nil
}

func (e *HTTPExecutor) Execute(ctx context.Context, tx *host.Transaction) (*host.Receipt, error) {
	body, err := json.Marshal(relayapi.EncodeTransaction(tx))
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit transaction: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		failure := &SubmitFailure{Status: resp.StatusCode, Body: relayapi.SubmitError{Index: -1}}
		if err := json.Unmarshal(raw, &failure.Body); err != nil || failure.Body.Error == "" {
			failure.Body.Error = strings.TrimSpace(string(raw))
		}
		return nil, failure
	}

	var out relayapi.SubmitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	id, err := uuid.Parse(out.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid receipt id %q: %w", out.ID, err)
	}
	return &host.Receipt{ID: id, Slot: out.Slot, Logs: out.Logs}, nil
}
