// Package attest builds EIP-712 typed-data digests for mint attestations.
// A verifier approves a document, the service produces the digest, and the
// registry contract checks the verifier's signature over it on-chain.
package attest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Domain identifies the signing context per EIP-712.
type Domain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           uint64 `json:"chain_id"`
	VerifyingContract string `json:"verifying_contract"`
}

// Message is the attestation payload the verifier signs.
type Message struct {
	DocumentID  string `json:"document_id"`
	Beneficiary string `json:"beneficiary"`
	Amount      uint64 `json:"amount"`
	Nonce       uint64 `json:"nonce"`
	Deadline    uint64 `json:"deadline"`
}

const (
	domainType  = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	messageType = "MintAttestation(string documentId,address beneficiary,uint256 amount,uint256 nonce,uint256 deadline)"
)

var (
	ErrInvalidDomain  = errors.New("invalid signing domain")
	ErrInvalidMessage = errors.New("invalid attestation message")

	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

func keccak(chunks ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, c := range chunks {
		h.Write(c)
	}
	return h.Sum(nil)
}

// encUint packs v as a 32-byte big-endian word.
func encUint(v uint64) []byte {
	var word [32]byte
	binary.BigEndian.PutUint64(word[24:], v)
	return word[:]
}

// encAddress packs a 0x-hex address as a left-padded 32-byte word.
func encAddress(addr string) ([]byte, error) {
	if !addressPattern.MatchString(addr) {
		return nil, fmt.Errorf("address %q: %w", addr, ErrInvalidMessage)
	}
	raw, ok := new(big.Int).SetString(strings.TrimPrefix(addr, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("address %q: %w", addr, ErrInvalidMessage)
	}
	var word [32]byte
	raw.FillBytes(word[:])
	return word[:], nil
}

// Validate checks domain fields before hashing.
func (d Domain) Validate() error {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Version) == "" {
		return fmt.Errorf("name/version required: %w", ErrInvalidDomain)
	}
	if d.ChainID == 0 {
		return fmt.Errorf("chain id required: %w", ErrInvalidDomain)
	}
	if !addressPattern.MatchString(d.VerifyingContract) {
		return fmt.Errorf("verifying contract %q: %w", d.VerifyingContract, ErrInvalidDomain)
	}
	return nil
}

// Separator computes the EIP-712 domain separator.
func (d Domain) Separator() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	contract, err := encAddress(d.VerifyingContract)
	if err != nil {
		return nil, fmt.Errorf("verifying contract: %w", ErrInvalidDomain)
	}
	return keccak(
		keccak([]byte(domainType)),
		keccak([]byte(d.Name)),
		keccak([]byte(d.Version)),
		encUint(d.ChainID),
		contract,
	), nil
}

// Validate checks message fields before hashing.
func (m Message) Validate() error {
	if strings.TrimSpace(m.DocumentID) == "" {
		return fmt.Errorf("document id required: %w", ErrInvalidMessage)
	}
	if !addressPattern.MatchString(m.Beneficiary) {
		return fmt.Errorf("beneficiary %q: %w", m.Beneficiary, ErrInvalidMessage)
	}
	if m.Amount == 0 {
		return fmt.Errorf("amount required: %w", ErrInvalidMessage)
	}
	if m.Deadline == 0 {
		return fmt.Errorf("deadline required: %w", ErrInvalidMessage)
	}
	return nil
}

// HashStruct computes keccak(typeHash || encoded fields).
func (m Message) HashStruct() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	beneficiary, err := encAddress(m.Beneficiary)
	if err != nil {
		return nil, err
	}
	return keccak(
		keccak([]byte(messageType)),
		keccak([]byte(m.DocumentID)),
		beneficiary,
		encUint(m.Amount),
		encUint(m.Nonce),
		encUint(m.Deadline),
	), nil
}

// Digest computes the final signable hash: keccak(0x19 0x01 || separator ||
// hashStruct(message)).
func Digest(d Domain, m Message) ([]byte, error) {
	sep, err := d.Separator()
	if err != nil {
		return nil, err
	}
	msg, err := m.HashStruct()
	if err != nil {
		return nil, err
	}
	return keccak([]byte{0x19, 0x01}, sep, msg), nil
}
