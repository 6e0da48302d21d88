package ton

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"

	"adboard-backend/internal/common/config"
	"adboard-backend/internal/common/logger"

	"github.com/rs/zerolog"
)

// FundStatus is the escrow collaborator's answer to a deposit check.
type FundStatus string

const (
	FundConfirmed FundStatus = "confirmed"
	FundPending   FundStatus = "pending"
	FundFailed    FundStatus = "failed"
)

// Escrow verifies deposits to the platform escrow wallet via TonAPI and
// submits release/refund orders to the payout signer. The signer holds the
// wallet keys; this process never does.
type Escrow struct {
	apiBase      string
	apiToken     string
	escrowWallet *address.Address
	httpClient   *http.Client
	log          zerolog.Logger
}

func NewEscrow(cfg *config.Config) (*Escrow, error) {
	wallet, err := address.ParseAddr(cfg.Ton.EscrowWallet)
	if err != nil {
		return nil, fmt.Errorf("invalid escrow wallet address: %w", err)
	}
	return &Escrow{
		apiBase:      strings.TrimRight(cfg.Ton.APIBase, "/"),
		apiToken:     cfg.Ton.APIToken,
		escrowWallet: wallet,
		httpClient:   &http.Client{Timeout: 8 * time.Second},
		log:          logger.With("escrow"),
	}, nil
}

type accountEvent struct {
	InProgress bool `json:"in_progress"`
	Actions    []struct {
		Type        string `json:"type"`
		TonTransfer *struct {
			Amount  int64  `json:"amount"`
			Comment string `json:"comment"`
		} `json:"TonTransfer,omitempty"`
	} `json:"actions"`
}

// CheckDeposit looks for an inbound transfer to the escrow wallet carrying the
// deal reference as its comment and matching the deal amount exactly.
// Returns pending while a matching transfer is still in flight, failed when
// nothing matches.
func (e *Escrow) CheckDeposit(ctx context.Context, dealRef string, amount int64) (FundStatus, error) {
	var out struct {
		Events []accountEvent `json:"events"`
	}

	url := fmt.Sprintf("%s/v2/accounts/%s/events?limit=50", e.apiBase, e.escrowWallet.String())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	req.Header.Set("Accept", "application/json")
	if e.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiToken)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return FundFailed, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return FundFailed, fmt.Errorf("tonapi http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return FundFailed, err
	}

	for _, ev := range out.Events {
		for _, action := range ev.Actions {
			if action.TonTransfer == nil || action.TonTransfer.Comment != dealRef {
				continue
			}
			if ev.InProgress {
				return FundPending, nil
			}
			if action.TonTransfer.Amount == amount {
				e.log.Info().
					Str("deal_ref", dealRef).
					Str("amount", tlb.FromNanoTONU(uint64(amount)).String()).
					Msg("escrow deposit confirmed")
				return FundConfirmed, nil
			}
			// A transfer with the right comment but wrong amount never confirms.
			e.log.Warn().
				Str("deal_ref", dealRef).
				Int64("expected", amount).
				Int64("got", action.TonTransfer.Amount).
				Msg("escrow deposit amount mismatch")
			return FundFailed, nil
		}
	}

	return FundPending, nil
}

type payoutOrder struct {
	DealRef string `json:"deal_ref"`
	To      string `json:"to"`
	Amount  int64  `json:"amount"`
	Kind    string `json:"kind"` // release | refund
}

func (e *Escrow) submitOrder(ctx context.Context, order payoutOrder) error {
	if _, err := address.ParseAddr(order.To); err != nil {
		return fmt.Errorf("invalid payout address: %w", err)
	}

	body, err := json.Marshal(order)
	if err != nil {
		return err
	}

	url := e.apiBase + "/internal/payouts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiToken)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("payout signer http %d", resp.StatusCode)
	}

	e.log.Info().
		Str("deal_ref", order.DealRef).
		Str("kind", order.Kind).
		Str("amount", tlb.FromNanoTONU(uint64(order.Amount)).String()).
		Msg("payout order submitted")
	return nil
}

// Release pays the owner their share after completion.
func (e *Escrow) Release(ctx context.Context, dealRef, toAddress string, amount int64) error {
	return e.submitOrder(ctx, payoutOrder{DealRef: dealRef, To: toAddress, Amount: amount, Kind: "release"})
}

// Refund returns escrowed funds to the advertiser.
func (e *Escrow) Refund(ctx context.Context, dealRef, toAddress string, amount int64) error {
	return e.submitOrder(ctx, payoutOrder{DealRef: dealRef, To: toAddress, Amount: amount, Kind: "refund"})
}
