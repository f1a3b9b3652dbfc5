package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"ndxgov/storage"
)

// Manager is a journaled key/value view over the ledger database. Writes stay
// in an in-memory overlay until Commit, and any suffix of them can be rolled
// back with RevertToSnapshot. A Manager is not safe for concurrent use; the
// chain serialises access to it.
type Manager struct {
	db      storage.Database
	dirty   map[string]entry
	journal []journalEntry
}

type entry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    entry
	existed bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:    db,
		dirty: make(map[string]entry),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) read(hashed []byte) ([]byte, error) {
	if e, ok := m.dirty[string(hashed)]; ok {
		if e.deleted {
			return nil, nil
		}
		return e.value, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (m *Manager) write(hashed []byte, e entry) {
	k := string(hashed)
	prev, existed := m.dirty[k]
	m.journal = append(m.journal, journalEntry{key: k, prev: prev, existed: existed})
	m.dirty[k] = e
}

// KVPut stores the RLP encoding of value under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.write(kvKey(key), entry{value: encoded})
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.write(kvKey(key), entry{deleted: true})
	return nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := m.read(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	m.write(hashed, entry{value: encoded})
	return nil
}

// KVGetList decodes the list stored under key into out, which must point to a
// slice. Missing keys produce an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every write made after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		j := m.journal[i]
		if j.existed {
			m.dirty[j.key] = j.prev
		} else {
			delete(m.dirty, j.key)
		}
	}
	m.journal = m.journal[:id]
}

// Pending reports the number of keys waiting to be flushed.
func (m *Manager) Pending() int {
	return len(m.dirty)
}

// Commit flushes the overlay to the database in one batch and returns a
// BLAKE3 digest of the committed write set. An empty overlay yields the zero
// digest.
func (m *Manager) Commit() ([32]byte, error) {
	var digest [32]byte
	if len(m.dirty) == 0 {
		m.journal = m.journal[:0]
		return digest, nil
	}
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	hasher := blake3.New(32, nil)
	batch := new(storage.Batch)
	for _, k := range keys {
		e := m.dirty[k]
		hasher.Write([]byte(k))
		if e.deleted {
			batch.Delete([]byte(k))
			hasher.Write([]byte{0})
			continue
		}
		batch.Put([]byte(k), e.value)
		hasher.Write([]byte{1})
		hasher.Write(e.value)
	}
	if err := m.db.Write(batch); err != nil {
		return digest, err
	}
	copy(digest[:], hasher.Sum(nil))
	m.dirty = make(map[string]entry)
	m.journal = m.journal[:0]
	return digest, nil
}

// Discard drops every uncommitted write.
func (m *Manager) Discard() {
	m.dirty = make(map[string]entry)
	m.journal = m.journal[:0]
}
