package httptransport

import (
	"strconv"
	"time"

	"ccns/internal/registrar"
	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
	audit "ccns/pkg/platform/audit"
)

type RegisterRequest struct {
	Name string `json:"name"`
}

func (r *RegisterRequest) Validate() error {
	_, err := id.ParseName(r.Name)
	return err
}

type EnableChainRequest struct {
	Selector string `json:"selector"`
	Receiver string `json:"receiver"`
	GasLimit uint64 `json:"gas_limit"`
}

func (r *EnableChainRequest) Validate() error {
	if _, err := id.ParseChainSelector(r.Selector); err != nil {
		return err
	}
	if _, err := id.ParseAddress(r.Receiver); err != nil {
		return dErrors.New(dErrors.CodeInvalidConfig, "receiver must be a 0x-prefixed 20 byte address")
	}
	return nil
}

type FundRequest struct {
	Amount uint64 `json:"amount"`
}

func (r *FundRequest) Validate() error {
	if r.Amount == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	return nil
}

type NameResponse struct {
	Name  string     `json:"name"`
	Owner id.Address `json:"owner"`
}

type DispatchResponse struct {
	Selector  string `json:"selector"`
	MessageID string `json:"message_id"`
	Fee       uint64 `json:"fee"`
}

type ReceiptResponse struct {
	Name       string             `json:"name"`
	Owner      id.Address         `json:"owner"`
	TotalFee   uint64             `json:"total_fee"`
	Dispatches []DispatchResponse `json:"dispatches"`
}

func FromReceipt(r *registrar.Receipt) ReceiptResponse {
	resp := ReceiptResponse{
		Name:       r.Name.String(),
		Owner:      r.Owner,
		TotalFee:   r.TotalFee(),
		Dispatches: make([]DispatchResponse, 0, len(r.Dispatches)),
	}
	for _, d := range r.Dispatches {
		resp.Dispatches = append(resp.Dispatches, DispatchResponse{
			Selector:  d.Selector.String(),
			MessageID: d.MessageID.String(),
			Fee:       d.Fee,
		})
	}
	return resp
}

type ChainLinkResponse struct {
	Selector  string     `json:"selector"`
	Receiver  id.Address `json:"receiver"`
	GasLimit  uint64     `json:"gas_limit"`
	EnabledAt string     `json:"enabled_at"`
}

func FromChainLinks(links []registrar.ChainLink) []ChainLinkResponse {
	out := make([]ChainLinkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, ChainLinkResponse{
			Selector:  strconv.FormatUint(uint64(l.Selector), 10),
			Receiver:  l.Receiver,
			GasLimit:  l.GasLimit,
			EnabledAt: l.EnabledAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

type BalanceResponse struct {
	Balance uint64 `json:"balance"`
}

type EventResponse struct {
	Action    string     `json:"action"`
	Category  string     `json:"category"`
	Timestamp time.Time  `json:"timestamp"`
	Chain     string     `json:"chain"`
	Peer      string     `json:"peer,omitempty"`
	Owner     id.Address `json:"owner"`
	Actor     id.Address `json:"actor"`
	MessageID string     `json:"message_id,omitempty"`
	Amount    uint64     `json:"amount,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

func FromEvents(events []audit.Event) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp := EventResponse{
			Action:    e.Action,
			Category:  string(e.Category),
			Timestamp: e.Timestamp,
			Chain:     e.Chain.String(),
			Owner:     e.Owner,
			Actor:     e.Actor,
			Amount:    e.Amount,
			Reason:    e.Reason,
		}
		if e.Peer != 0 {
			resp.Peer = e.Peer.String()
		}
		if !e.MessageID.IsNil() {
			resp.MessageID = e.MessageID.String()
		}
		out = append(out, resp)
	}
	return out
}
