package algorand

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"zkpad/internal/domain"
)

// Provider anchors notes on Algorand TestNet with a zero-amount
// self-payment whose note field carries the canonical anchor payload.
// It speaks the algod REST API directly and encodes transactions in
// Algorand's canonical msgpack form.
type Provider struct {
	address string
	token   string
	client  *http.Client

	priv   ed25519.PrivateKey
	sender string
}

const (
	chainName     = "algorand"
	network       = "testnet"
	explorerBase  = "https://testnet.explorer.perawallet.app/tx/"
	validityRange = 1000
)

// New derives the account key from the configured mnemonic: the phrase
// is normalized and hashed to a 32-byte seed, so the same phrase always
// yields the same account. Fund the printed address before anchoring.
func New(algodAddress, algodToken, mnemonic string) (*Provider, error) {
	if algodAddress == "" {
		return nil, fmt.Errorf("algod address is required")
	}
	if mnemonic == "" {
		return nil, fmt.Errorf("%w: anchor account mnemonic is required", domain.ErrAnchorPermanent)
	}
	words := strings.Fields(strings.ToLower(strings.TrimSpace(mnemonic)))
	if len(words) != 25 {
		return nil, fmt.Errorf("%w: anchor mnemonic must have 25 words, got %d", domain.ErrAnchorPermanent, len(words))
	}
	seed := sha256.Sum256([]byte(strings.Join(words, " ")))
	priv := ed25519.NewKeyFromSeed(seed[:])
	return &Provider{
		address: strings.TrimRight(algodAddress, "/"),
		token:   algodToken,
		client:  &http.Client{},
		priv:    priv,
		sender:  EncodeAddress(priv.Public().(ed25519.PublicKey)),
	}, nil
}

func (p *Provider) ChainName() string {
	return chainName
}

func (p *Provider) SenderAddress() string {
	return p.sender
}

type suggestedParams struct {
	Fee         uint64 `json:"fee"`
	MinFee      uint64 `json:"min-fee"`
	GenesisID   string `json:"genesis-id"`
	GenesisHash string `json:"genesis-hash"`
	LastRound   uint64 `json:"last-round"`
}

func (p *Provider) Submit(ctx context.Context, note []byte) (domain.AnchorRecord, error) {
	if len(note) > 1024 {
		return domain.AnchorRecord{}, fmt.Errorf("%w: note is %d bytes, chain limit is 1024", domain.ErrAnchorPermanent, len(note))
	}

	params, err := p.suggestedParams(ctx)
	if err != nil {
		return domain.AnchorRecord{}, err
	}
	gh, err := base64.StdEncoding.DecodeString(params.GenesisHash)
	if err != nil {
		return domain.AnchorRecord{}, fmt.Errorf("%w: decode genesis hash: %v", domain.ErrAnchorPermanent, err)
	}
	fee := params.Fee
	if fee < params.MinFee {
		fee = params.MinFee
	}

	pub := p.priv.Public().(ed25519.PublicKey)
	txn := paymentTxn{
		Fee:         fee,
		FirstValid:  params.LastRound,
		LastValid:   params.LastRound + validityRange,
		GenesisID:   params.GenesisID,
		GenesisHash: gh,
		Note:        note,
		Receiver:    []byte(pub),
		Sender:      []byte(pub),
	}

	encoded := txn.encode()
	toSign := append([]byte("TX"), encoded...)
	sig := ed25519.Sign(p.priv, toSign)
	signed := encodeSignedTxn(sig, txn)
	txid := txID(toSign)

	if err := p.broadcast(ctx, signed); err != nil {
		return domain.AnchorRecord{}, err
	}
	round := p.waitForConfirmation(ctx, txid)

	return domain.AnchorRecord{
		Chain:         chainName,
		Network:       network,
		TransactionID: txid,
		BlockHeight:   int64(round),
		Confirmed:     round > 0,
		ExplorerURL:   explorerBase + txid,
	}, nil
}

// Lookup reads the note back while the transaction is still visible in
// the node's pending/recent pool.
func (p *Provider) Lookup(ctx context.Context, transactionID string) ([]byte, error) {
	body, status, err := p.get(ctx, "/v2/transactions/pending/"+transactionID+"?format=json")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("transaction %s not available: status %d", transactionID, status)
	}
	var payload struct {
		Txn struct {
			Txn struct {
				Note string `json:"note"`
			} `json:"txn"`
		} `json:"txn"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode pending transaction: %w", err)
	}
	if payload.Txn.Txn.Note == "" {
		return nil, fmt.Errorf("transaction %s carries no note", transactionID)
	}
	return base64.StdEncoding.DecodeString(payload.Txn.Txn.Note)
}

func (p *Provider) suggestedParams(ctx context.Context) (*suggestedParams, error) {
	body, status, err := p.get(ctx, "/v2/transactions/params")
	if err != nil {
		return nil, fmt.Errorf("%w: fetch params: %v", domain.ErrAnchorTransient, err)
	}
	if status != http.StatusOK {
		return nil, classifyStatus(status, body)
	}
	var params suggestedParams
	if err := json.Unmarshal(body, &params); err != nil {
		return nil, fmt.Errorf("%w: decode params: %v", domain.ErrAnchorTransient, err)
	}
	return &params, nil
}

func (p *Provider) broadcast(ctx context.Context, signed []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.address+"/v2/transactions", bytes.NewReader(signed))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAnchorPermanent, err)
	}
	req.Header.Set("Content-Type", "application/x-binary")
	if p.token != "" {
		req.Header.Set("X-Algo-API-Token", p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: broadcast: %v", domain.ErrAnchorTransient, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode, body)
	}
	return nil
}

// waitForConfirmation polls pending info for a few rounds; an anchored
// transaction that has not confirmed yet is still recorded, unconfirmed.
func (p *Provider) waitForConfirmation(ctx context.Context, txid string) uint64 {
	for i := 0; i < 5; i++ {
		body, status, err := p.get(ctx, "/v2/transactions/pending/"+txid+"?format=json")
		if err != nil || status != http.StatusOK {
			return 0
		}
		var payload struct {
			ConfirmedRound uint64 `json:"confirmed-round"`
			PoolError      string `json:"pool-error"`
		}
		if json.Unmarshal(body, &payload) != nil {
			return 0
		}
		if payload.ConfirmedRound > 0 || payload.PoolError != "" {
			return payload.ConfirmedRound
		}
		select {
		case <-ctx.Done():
			return 0
		case <-time.After(time.Second):
		}
	}
	return 0
}

func (p *Provider) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.address+path, nil)
	if err != nil {
		return nil, 0, err
	}
	if p.token != "" {
		req.Header.Set("X-Algo-API-Token", p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return body, resp.StatusCode, err
}

// classifyStatus maps HTTP outcomes onto the retry policy: 5xx and 429
// are transient, 4xx rejections (malformed, overspend) are permanent.
func classifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if status >= 500 || status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: algod returned %d: %s", domain.ErrAnchorTransient, status, msg)
	}
	return fmt.Errorf("%w: algod returned %d: %s", domain.ErrAnchorPermanent, status, msg)
}

// EncodeAddress renders a public key in Algorand address form: base32 of
// key bytes plus the last four bytes of their SHA-512/256 as checksum.
func EncodeAddress(pub ed25519.PublicKey) string {
	sum := sha512.Sum512_256(pub)
	full := append(append([]byte(nil), pub...), sum[28:]...)
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(full)
}

func txID(toSign []byte) string {
	sum := sha512.Sum512_256(toSign)
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:])
}

var _ domain.LedgerAdapter = (*Provider)(nil)
var _ domain.LedgerLookup = (*Provider)(nil)
