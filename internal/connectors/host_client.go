package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xela07ax/paylimit-gate/internal/domain"
)

// HostClient - жизненный цикл платежа во внешней учетной системе по HTTP.
type HostClient struct {
	baseURL string
	http    *http.Client
}

func NewHostClient(baseURL string, timeout time.Duration) *HostClient {
	return &HostClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type transitionRequest struct {
	PaymentID         string          `json:"payment_id"`
	OrgID             string          `json:"org_id"`
	Amount            decimal.Decimal `json:"amount"`
	ApprovedByFinance bool            `json:"approved_by_finance"`
}

// Post реализует gate.Lifecycle
func (c *HostClient) Post(ctx context.Context, p *domain.Payment) (domain.TransitionResult, error) {
	return c.transition(ctx, p, "post", domain.StatePosted)
}

// ResetToDraft реализует gate.Lifecycle
func (c *HostClient) ResetToDraft(ctx context.Context, p *domain.Payment) (domain.TransitionResult, error) {
	return c.transition(ctx, p, "draft", domain.StateDraft)
}

func (c *HostClient) transition(ctx context.Context, p *domain.Payment, action string, target domain.PaymentState) (domain.TransitionResult, error) {
	body, err := json.Marshal(transitionRequest{
		PaymentID:         p.ID,
		OrgID:             p.OrgID,
		Amount:            p.Amount,
		ApprovedByFinance: p.ApprovedByFinance,
	})
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("failed to marshal transition request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/payments/%s/%s", c.baseURL, url.PathEscape(p.ID), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.TransitionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("host call failed: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound:
		return domain.TransitionResult{}, fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, p.ID)
	case resp.StatusCode == http.StatusConflict:
		return domain.TransitionResult{}, fmt.Errorf("%w: %s", domain.ErrInvalidTransition, bytes.TrimSpace(payload))
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.TransitionResult{}, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      errors.New(string(bytes.TrimSpace(payload))),
		}
	default:
		return domain.TransitionResult{}, &HostError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(payload))}
	}

	// 2xx уже означает, что переход выполнен. Тело необязательно (204, пустой 200).
	var res domain.TransitionResult
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &res); err != nil {
			return domain.TransitionResult{}, fmt.Errorf("failed to decode host response: %w", err)
		}
	}
	if res.PaymentID == "" {
		res.PaymentID = p.ID
	}
	if res.State == "" {
		res.State = target
	}
	if res.At.IsZero() {
		res.At = time.Now()
	}
	p.State = res.State
	return res, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}
