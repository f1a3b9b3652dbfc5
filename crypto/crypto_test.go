package crypto

import (
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("unexpected prefix: %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %s != %s", decoded.Hex(), addr.Hex())
	}
	fromHex, err := ParseAddress(addr.Hex())
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if fromHex != addr {
		t.Fatalf("hex round trip mismatch")
	}
}

func TestAddressJSON(t *testing.T) {
	addr := ContractAddress("ndx/token")
	raw, err := json.Marshal(struct {
		A Address `json:"a"`
	}{addr})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		A Address `json:"a"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.A != addr {
		t.Fatalf("json round trip mismatch")
	}
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "0x1234", "cosmos1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq", "0xzz"} {
		if _, err := ParseAddress(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestSignAndRecoverTypedData(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	domain := DomainSeparator("Indexed", 1, ContractAddress("ndx/token"))
	structHash := HashStruct(TypeHash("Ping(uint256 n)"), Uint256Word(big.NewInt(7)))
	digest := TypedDataDigest(domain, structHash)

	v, r, s, err := SignDigest(key, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if v != 27 && v != 28 {
		t.Fatalf("unexpected v: %d", v)
	}
	signer, err := RecoverSigner(digest, v, r, s)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if signer != key.Address() {
		t.Fatalf("recovered %s want %s", signer.Hex(), key.Address().Hex())
	}

	other := TypedDataDigest(domain, HashStruct(TypeHash("Ping(uint256 n)"), Uint256Word(big.NewInt(8))))
	wrong, err := RecoverSigner(other, v, r, s)
	if err == nil && wrong == key.Address() {
		t.Fatalf("signature must not verify against a different digest")
	}
	if _, err := RecoverSigner(digest, 1, r, s); err == nil {
		t.Fatalf("expected invalid v to fail")
	}
}

func TestCreateAddress2Deterministic(t *testing.T) {
	deployer := ContractAddress("ndx/staking/factory")
	var salt [32]byte
	salt[31] = 1
	first := CreateAddress2(deployer, salt, []byte{0x01})
	second := CreateAddress2(deployer, salt, []byte{0x01})
	if first != second {
		t.Fatalf("expected deterministic address")
	}
	salt[31] = 2
	if CreateAddress2(deployer, salt, []byte{0x01}) == first {
		t.Fatalf("expected salt to change the address")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "operator.keystore")
	if err := SaveToKeystore(path, key, "secret"); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Address() != key.Address() {
		t.Fatalf("keystore returned a different key")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}

func TestKeystoreAddressWithoutPassphrase(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "cli.keystore")
	if err := SaveToKeystore(path, key, "secret"); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("keystore mode %o, want 600", perm)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected only the keystore in its directory, got %d entries (%v)", len(entries), err)
	}
	addr, err := KeystoreAddress(path)
	if err != nil {
		t.Fatalf("keystore address: %v", err)
	}
	if addr != key.Address() {
		t.Fatalf("keystore address %s, want %s", addr, key.Address())
	}
	if _, err := KeystoreAddress(""); !errors.Is(err, ErrKeystorePath) {
		t.Fatalf("expected ErrKeystorePath, got %v", err)
	}
}

func TestKeystoreRejectsForeignAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "operator.keystore")
	if err := SaveToKeystore(path, key, "secret"); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode keystore: %v", err)
	}
	doc["address"] = trimHexPrefix(ContractAddress("someone-else").Hex())
	raw, err = json.Marshal(doc)
	if err != nil {
		t.Fatalf("encode keystore: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFromKeystore(path, "secret"); !errors.Is(err, ErrKeystoreMismatch) {
		t.Fatalf("expected ErrKeystoreMismatch, got %v", err)
	}
}
