package attest

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testDomain() Domain {
	return Domain{
		Name:              "CarbexRegistry",
		Version:           "1",
		ChainID:           137,
		VerifyingContract: "0x1111111111111111111111111111111111111111",
	}
}

func TestDigestDeterministic(t *testing.T) {
	msg := Message{
		DocumentID:  "doc-1",
		Beneficiary: "0x2222222222222222222222222222222222222222",
		Amount:      1000,
		Nonce:       1,
		Deadline:    1900000000,
	}
	d1, err := Digest(testDomain(), msg)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	d2, err := Digest(testDomain(), msg)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if len(d1) != 32 {
		t.Fatalf("digest length=%d", len(d1))
	}
	if string(d1) != string(d2) {
		t.Fatalf("digest not deterministic")
	}
}

func TestDigestSensitivity(t *testing.T) {
	base := Message{
		DocumentID:  "doc-1",
		Beneficiary: "0x2222222222222222222222222222222222222222",
		Amount:      1000,
		Nonce:       1,
		Deadline:    1900000000,
	}
	ref, err := Digest(testDomain(), base)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}

	variants := []Message{base, base, base, base}
	variants[0].DocumentID = "doc-2"
	variants[1].Amount = 1001
	variants[2].Nonce = 2
	variants[3].Deadline = 1900000001
	for i, m := range variants {
		d, err := Digest(testDomain(), m)
		if err != nil {
			t.Fatalf("variant %d: %v", i, err)
		}
		if string(d) == string(ref) {
			t.Fatalf("variant %d collided with base digest", i)
		}
	}

	other := testDomain()
	other.ChainID = 1
	d, err := Digest(other, base)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if string(d) == string(ref) {
		t.Fatalf("domain change did not change digest")
	}
}

func TestValidation(t *testing.T) {
	msg := Message{
		DocumentID:  "doc-1",
		Beneficiary: "not-an-address",
		Amount:      10,
		Nonce:       1,
		Deadline:    1,
	}
	if _, err := Digest(testDomain(), msg); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("bad beneficiary err=%v", err)
	}

	dom := testDomain()
	dom.VerifyingContract = "0x123"
	msg.Beneficiary = "0x2222222222222222222222222222222222222222"
	if _, err := Digest(dom, msg); !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("bad contract err=%v", err)
	}
}

func TestServiceNonceProgression(t *testing.T) {
	svc, err := NewService(testDomain(), time.Hour)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()
	beneficiary := "0x2222222222222222222222222222222222222222"

	a1, err := svc.Issue(ctx, "doc-1", beneficiary, 100)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	a2, err := svc.Issue(ctx, "doc-1", beneficiary, 100)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if a1.Nonce != 1 || a2.Nonce != 2 {
		t.Fatalf("nonces=%d,%d", a1.Nonce, a2.Nonce)
	}
	if a1.Digest == a2.Digest {
		t.Fatalf("re-issue produced identical digest")
	}

	// The newer attestation supersedes the older one.
	if svc.Current(a1) {
		t.Fatalf("superseded attestation reported current")
	}
	if !svc.Current(a2) {
		t.Fatalf("latest attestation not current")
	}

	got, ok := svc.Get(ctx, a2.ID)
	if !ok || got.Digest != a2.Digest {
		t.Fatalf("Get: ok=%v got=%+v", ok, got)
	}
}

func TestServiceDeadlineExpiry(t *testing.T) {
	svc, err := NewService(testDomain(), time.Minute)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	a, err := svc.Issue(context.Background(), "doc-1", "0x2222222222222222222222222222222222222222", 5)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	if svc.Current(a) {
		t.Fatalf("expired attestation reported current")
	}
}
