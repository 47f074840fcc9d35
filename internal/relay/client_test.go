package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/bridge-relay/internal/chain"
)

func sampleEvent() chain.Event {
	return chain.Event{
		BlockNumber: 994,
		TxHash:      "0xabc",
		TxIndex:     1,
		LogIndex:    2,
		Fields: map[string]any{
			"sender":             common.HexToAddress("0x0000000000000000000000000000000000000001"),
			"destinationChainId": big.NewInt(5),
			"recipient":          common.HexToAddress("0x0000000000000000000000000000000000000002"),
			"token":              common.HexToAddress("0x0000000000000000000000000000000000000003"),
			"amount":             big.NewInt(1000),
			"transactionId":      [32]byte{0xde, 0xad},
		},
	}
}

func TestNewPayloadShapesFields(t *testing.T) {
	p := NewPayload(sampleEvent())

	if p.SourceTransactionHash != "0xabc" || p.SourceBlockNumber != 994 || p.LogIndex != 2 {
		t.Fatalf("source fields wrong: %+v", p)
	}
	if p.Body.Sender != "0x0000000000000000000000000000000000000001" {
		t.Fatalf("sender = %q", p.Body.Sender)
	}
	if p.Body.Amount != "1000" {
		t.Fatalf("amount = %q, want decimal string", p.Body.Amount)
	}
	if p.Body.UniqueBridgeTxID != "0xdead000000000000000000000000000000000000000000000000000000000000" {
		t.Fatalf("uniqueBridgeTxId = %q", p.Body.UniqueBridgeTxID)
	}
}

func TestAmountSerializedAsString(t *testing.T) {
	big18, ok := new(big.Int).SetString("1000000000000000000000", 10)
	if !ok {
		t.Fatalf("parse big int")
	}
	ev := sampleEvent()
	ev.Fields["amount"] = big18

	raw, err := json.Marshal(NewPayload(ev))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Payload struct {
			Amount string `json:"amount"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Payload.Amount != "1000000000000000000000" {
		t.Fatalf("amount = %q, precision lost", decoded.Payload.Amount)
	}
}

func TestDeliverPostsJSON(t *testing.T) {
	var got Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender, err := NewHTTPSender(server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}

	if err := sender.Deliver(context.Background(), NewPayload(sampleEvent())); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got.SourceTransactionHash != "0xabc" {
		t.Fatalf("payload not delivered: %+v", got)
	}
}

func TestDeliverNon2xxIsDeliveryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "transfer rejected", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	sender, err := NewHTTPSender(server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}

	err = sender.Deliver(context.Background(), NewPayload(sampleEvent()))
	var dErr *DeliveryError
	if !errors.As(err, &dErr) {
		t.Fatalf("expected *DeliveryError, got %v", err)
	}
	if dErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", dErr.StatusCode)
	}
	if dErr.Message != "transfer rejected" {
		t.Fatalf("message = %q", dErr.Message)
	}
}

func TestDeliverTransportFailureIsDeliveryError(t *testing.T) {
	sender, err := NewHTTPSender("http://127.0.0.1:1", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}

	err = sender.Deliver(context.Background(), NewPayload(sampleEvent()))
	var dErr *DeliveryError
	if !errors.As(err, &dErr) {
		t.Fatalf("expected *DeliveryError, got %v", err)
	}
	if dErr.StatusCode != 0 {
		t.Fatalf("transport failure should carry no status, got %d", dErr.StatusCode)
	}
}
