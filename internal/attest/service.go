package attest

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"carbex.org/internal/ids"
)

// Attestation is an issued, signable mint approval. Digest is hex-encoded
// without the 0x prefix.
type Attestation struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Beneficiary string    `json:"beneficiary"`
	Amount      uint64    `json:"amount"`
	Nonce       uint64    `json:"nonce"`
	Deadline    uint64    `json:"deadline"`
	Digest      string    `json:"digest"`
	CreatedAt   time.Time `json:"created_at"`
}

// Service issues attestations with monotonically increasing nonces per
// document, preventing replay of a superseded approval.
type Service struct {
	domain Domain
	ttl    time.Duration
	now    func() time.Time

	mu     sync.Mutex
	nonces map[string]uint64 // documentID -> last issued nonce
	issued map[string]Attestation
}

// NewService builds an issuer for the given signing domain. ttl bounds how
// long an attestation stays signable.
func NewService(domain Domain, ttl time.Duration) (*Service, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		domain: domain,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		nonces: make(map[string]uint64),
		issued: make(map[string]Attestation),
	}, nil
}

// Domain returns the signing domain, for clients reconstructing typed data.
func (s *Service) Domain() Domain { return s.domain }

// Issue builds and records an attestation for the document.
func (s *Service) Issue(ctx context.Context, documentID, beneficiary string, amount uint64) (Attestation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	msg := Message{
		DocumentID:  documentID,
		Beneficiary: beneficiary,
		Amount:      amount,
		Nonce:       s.nonces[documentID] + 1,
		Deadline:    uint64(now.Add(s.ttl).Unix()),
	}
	digest, err := Digest(s.domain, msg)
	if err != nil {
		return Attestation{}, err
	}

	s.nonces[documentID] = msg.Nonce
	a := Attestation{
		ID:          ids.New(),
		DocumentID:  documentID,
		Beneficiary: beneficiary,
		Amount:      amount,
		Nonce:       msg.Nonce,
		Deadline:    msg.Deadline,
		Digest:      hex.EncodeToString(digest),
		CreatedAt:   now,
	}
	s.issued[a.ID] = a
	return a, nil
}

// Get returns a previously issued attestation.
func (s *Service) Get(ctx context.Context, id string) (Attestation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.issued[id]
	return a, ok
}

// Current reports whether the attestation is the latest for its document and
// not past its deadline.
func (s *Service) Current(a Attestation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nonces[a.DocumentID] != a.Nonce {
		return false
	}
	return uint64(s.now().Unix()) <= a.Deadline
}
