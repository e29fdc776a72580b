package signer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Service signs a 32-byte digest with the operator key and returns a 65-byte
// (r, s, v) recoverable signature with v in {27, 28}. The production
// implementation talks to an external signing service; the orchestrator
// never holds the key itself.
type Service interface {
	Sign(ctx context.Context, digest [32]byte) ([]byte, error)
}

// normalizeV lifts a 0/1 recovery id to the 27/28 convention.
func normalizeV(sig []byte) ([]byte, error) {
	if len(sig) != 65 {
		return nil, fmt.Errorf("signature length %d, want 65", len(sig))
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	if sig[64] != 27 && sig[64] != 28 {
		return nil, fmt.Errorf("invalid recovery id %d", sig[64])
	}
	return sig, nil
}

// LocalSigner signs in-process with a raw secp256k1 key. Used for tests and
// development networks only.
type LocalSigner struct {
	key *ecdsa.PrivateKey
}

func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key}
}

// LocalSignerFromHex builds a LocalSigner from a hex-encoded private key.
func LocalSignerFromHex(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}
	return &LocalSigner{key: key}, nil
}

// Address is the operator address signatures recover to.
func (s *LocalSigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *LocalSigner) Sign(_ context.Context, digest [32]byte) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	return normalizeV(sig)
}

// RemoteSigner calls an external HTTP signing service. Transient failures
// (connection errors, 5xx) are retried with exponential backoff and finally
// surfaced as signing_service_unavailable.
type RemoteSigner struct {
	url    string
	client *http.Client

	attempts    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func NewRemoteSigner(url string) *RemoteSigner {
	return &RemoteSigner{
		url:         url,
		client:      &http.Client{Timeout: 10 * time.Second},
		attempts:    3,
		baseBackoff: 500 * time.Millisecond,
		maxBackoff:  30 * time.Second,
	}
}

type signRequest struct {
	Digest hexutil.Bytes `json:"digest"`
}

type signResponse struct {
	Signature hexutil.Bytes `json:"signature"`
}

func (s *RemoteSigner) Sign(ctx context.Context, digest [32]byte) ([]byte, error) {
	backoff := s.baseBackoff
	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
		}
		sig, retryable, err := s.signOnce(ctx, digest)
		if err == nil {
			return sig, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, lastErr)
}

func (s *RemoteSigner) signOnce(ctx context.Context, digest [32]byte) (sig []byte, retryable bool, err error) {
	body, err := json.Marshal(signRequest{Digest: digest[:]})
	if err != nil {
		return nil, false, fmt.Errorf("encode sign request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("signing service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("signing service status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("signing service rejected digest: status %d", resp.StatusCode)
	}

	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, true, fmt.Errorf("decode sign response: %w", err)
	}
	norm, err := normalizeV(out.Signature)
	if err != nil {
		return nil, false, err
	}
	return norm, false, nil
}
