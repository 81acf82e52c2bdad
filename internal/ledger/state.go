// Package ledger provides an in-process account ledger with transaction
// semantics: journaled contract storage, event logs and all-or-nothing revert.
package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/zeebo/blake3"
)

// State is contract storage plus the log stream. Every mutation is journaled
// so a transaction can be unwound to any snapshot.
type State struct {
	storage map[common.Address]map[common.Hash]common.Hash
	logs    []*types.Log
	journal []func()
}

// NewState returns empty storage.
func NewState() *State {
	return &State{
		storage: make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// GetState reads a storage slot. Unset slots read as zero.
func (s *State) GetState(addr common.Address, key common.Hash) common.Hash {
	if slots := s.storage[addr]; slots != nil {
		return slots[key]
	}
	return common.Hash{}
}

// SetState writes a storage slot.
func (s *State) SetState(addr common.Address, key, value common.Hash) {
	slots := s.storage[addr]
	if slots == nil {
		slots = make(map[common.Hash]common.Hash)
		s.storage[addr] = slots
	}

	prev, existed := slots[key]
	s.journal = append(s.journal, func() {
		if existed {
			slots[key] = prev
		} else {
			delete(slots, key)
		}
	})

	if value == (common.Hash{}) {
		delete(slots, key)
		return
	}
	slots[key] = value
}

// GetWord reads a slot as an unsigned 256-bit word.
func (s *State) GetWord(addr common.Address, key common.Hash) *uint256.Int {
	h := s.GetState(addr, key)
	return new(uint256.Int).SetBytes32(h[:])
}

// SetWord writes an unsigned 256-bit word.
func (s *State) SetWord(addr common.Address, key common.Hash, v *uint256.Int) {
	s.SetState(addr, key, common.Hash(v.Bytes32()))
}

// GetBig reads a slot as a non-negative big integer.
func (s *State) GetBig(addr common.Address, key common.Hash) *big.Int {
	return s.GetWord(addr, key).ToBig()
}

// AddLog appends an event log.
func (s *State) AddLog(l *types.Log) {
	l.Index = uint(len(s.logs))
	s.logs = append(s.logs, l)
	s.journal = append(s.journal, func() {
		s.logs = s.logs[:len(s.logs)-1]
	})
}

// Logs returns the logs emitted so far.
func (s *State) Logs() []*types.Log {
	return s.logs
}

// Snapshot returns an identifier for the current journal position.
func (s *State) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes every change made after the snapshot was taken.
func (s *State) RevertToSnapshot(id int) {
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:id]
}

// Finalise drops the journal and returns the logs accumulated since the last
// call, making every change permanent.
func (s *State) Finalise() []*types.Log {
	logs := s.logs
	s.logs = nil
	s.journal = s.journal[:0]
	return logs
}

// StorageKey derives a slot key from a namespace and its identifiers.
func StorageKey(prefix string, parts ...[]byte) common.Hash {
	h := blake3.New()
	h.Write([]byte(prefix))
	for _, p := range parts {
		h.Write(p)
	}
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}
