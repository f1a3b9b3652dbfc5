// Package genesis describes the initial deployment of an ndx network and
// builds it on a fresh chain.
package genesis

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ndxgov/crypto"
)

// Spec is the YAML genesis document.
type Spec struct {
	ChainID        uint64              `yaml:"chainId"`
	GenesisTime    string              `yaml:"genesisTime"`
	Token          TokenSpec           `yaml:"token"`
	Timelock       TimelockSpec        `yaml:"timelock"`
	Governance     GovernanceSpec      `yaml:"governance"`
	MetaGovernance *MetaGovernanceSpec `yaml:"metaGovernance,omitempty"`
	BankTokens     []BankTokenSpec     `yaml:"bankTokens,omitempty"`
	IndexPools     []string            `yaml:"indexPools,omitempty"`
	Staking        *StakingSpec        `yaml:"staking,omitempty"`
	Vesting        []VestingSpec       `yaml:"vesting,omitempty"`
	Alloc          map[string]string   `yaml:"alloc,omitempty"`

	genesisTimestamp uint64
}

type TokenSpec struct {
	Holder              string `yaml:"holder"`
	Minter              string `yaml:"minter,omitempty"`
	MintingAllowedAfter uint64 `yaml:"mintingAllowedAfter,omitempty"`
}

type TimelockSpec struct {
	Delay uint64 `yaml:"delay"`
}

// GovernanceSpec overrides the governor defaults. Amounts are decimal
// strings in base units.
type GovernanceSpec struct {
	Quorum                     string `yaml:"quorum,omitempty"`
	ProposalThreshold          string `yaml:"proposalThreshold,omitempty"`
	MaxOperations              uint64 `yaml:"maxOperations,omitempty"`
	VotingDelay                uint64 `yaml:"votingDelay,omitempty"`
	VotingPeriod               uint64 `yaml:"votingPeriod,omitempty"`
	PermanentVotingPeriod      uint64 `yaml:"permanentVotingPeriod,omitempty"`
	PermanentVotingPeriodAfter uint64 `yaml:"permanentVotingPeriodAfter,omitempty"`
	Guardian                   string `yaml:"guardian,omitempty"`
}

// MetaGovernanceSpec deploys the delegate voting bridge. An empty
// ExternalGovernor points the bridge at the local governor.
type MetaGovernanceSpec struct {
	ExternalGovernor  string `yaml:"externalGovernor,omitempty"`
	VotingGracePeriod uint64 `yaml:"votingGracePeriod"`
}

// BankTokenSpec deploys a plain ERC20. When PairOf names two other bank
// tokens the token is placed at their AMM pair address.
type BankTokenSpec struct {
	Name     string            `yaml:"name"`
	Symbol   string            `yaml:"symbol"`
	Decimals uint8             `yaml:"decimals"`
	PairOf   []string          `yaml:"pairOf,omitempty"`
	Alloc    map[string]string `yaml:"alloc,omitempty"`
}

type StakingSpec struct {
	Genesis       uint64            `yaml:"genesis"`
	AMMFactory    string            `yaml:"ammFactory,omitempty"`
	WrappedNative string            `yaml:"wrappedNative,omitempty"`
	RewardsBudget string            `yaml:"rewardsBudget,omitempty"`
	Pools         []StakingPoolSpec `yaml:"pools,omitempty"`
}

// StakingPoolSpec schedules a staking pool for an index pool by symbol.
type StakingPoolSpec struct {
	IndexPool    string `yaml:"indexPool"`
	UniswapPair  bool   `yaml:"uniswapPair,omitempty"`
	RewardAmount string `yaml:"rewardAmount"`
	Duration     uint64 `yaml:"duration,omitempty"`
}

const (
	VestingTreasury   = "treasury"
	VestingDelegating = "delegating"
	VestingCancelable = "cancelable"
	VestingLock       = "lock"
)

// VestingSpec funds a vesting contract from the token holder.
type VestingSpec struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	Recipient  string `yaml:"recipient"`
	Amount     string `yaml:"amount"`
	Begin      uint64 `yaml:"begin,omitempty"`
	Cliff      uint64 `yaml:"cliff,omitempty"`
	End        uint64 `yaml:"end"`
	Terminator string `yaml:"terminator,omitempty"`
}

// Load reads and validates a genesis file.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// Parse decodes a YAML genesis document. Unknown fields are rejected.
func Parse(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// GenesisTimestamp returns the parsed genesis time in unix seconds.
func (s *Spec) GenesisTimestamp() uint64 { return s.genesisTimestamp }

// Validate checks every address and amount in the document.
func (s *Spec) Validate() error {
	if s.ChainID == 0 {
		return errors.New("chainId must be non-zero")
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s.GenesisTime))
	if err != nil {
		return fmt.Errorf("genesisTime: %w", err)
	}
	if ts.Unix() <= 0 {
		return errors.New("genesisTime must be after the unix epoch")
	}
	s.genesisTimestamp = uint64(ts.Unix())

	if _, err := parseAddress("token.holder", s.Token.Holder); err != nil {
		return err
	}
	if _, err := optionalAddress("token.minter", s.Token.Minter); err != nil {
		return err
	}
	if _, err := optionalAmount("governance.quorum", s.Governance.Quorum); err != nil {
		return err
	}
	if _, err := optionalAmount("governance.proposalThreshold", s.Governance.ProposalThreshold); err != nil {
		return err
	}
	if _, err := optionalAddress("governance.guardian", s.Governance.Guardian); err != nil {
		return err
	}
	if m := s.MetaGovernance; m != nil {
		if _, err := optionalAddress("metaGovernance.externalGovernor", m.ExternalGovernor); err != nil {
			return err
		}
	}

	symbols := make(map[string]bool, len(s.BankTokens))
	for i, tok := range s.BankTokens {
		field := fmt.Sprintf("bankTokens[%d]", i)
		if strings.TrimSpace(tok.Symbol) == "" {
			return fmt.Errorf("%s.symbol required", field)
		}
		if symbols[tok.Symbol] {
			return fmt.Errorf("%s: duplicate symbol %q", field, tok.Symbol)
		}
		if len(tok.PairOf) != 0 {
			if len(tok.PairOf) != 2 {
				return fmt.Errorf("%s.pairOf must name two tokens", field)
			}
			for _, sym := range tok.PairOf {
				if !symbols[sym] {
					return fmt.Errorf("%s.pairOf: unknown token %q", field, sym)
				}
			}
		}
		symbols[tok.Symbol] = true
		for holder, amount := range tok.Alloc {
			if _, err := parseAddress(field+".alloc", holder); err != nil {
				return err
			}
			if _, err := parseAmount(field+".alloc", amount); err != nil {
				return err
			}
		}
	}
	for i, sym := range s.IndexPools {
		if !symbols[sym] {
			return fmt.Errorf("indexPools[%d]: unknown token %q", i, sym)
		}
	}
	if st := s.Staking; st != nil {
		if st.Genesis == 0 {
			return errors.New("staking.genesis required")
		}
		if _, err := optionalAddress("staking.ammFactory", st.AMMFactory); err != nil {
			return err
		}
		if st.WrappedNative != "" && !symbols[st.WrappedNative] {
			return fmt.Errorf("staking.wrappedNative: unknown token %q", st.WrappedNative)
		}
		if _, err := optionalAmount("staking.rewardsBudget", st.RewardsBudget); err != nil {
			return err
		}
		for i, p := range st.Pools {
			field := fmt.Sprintf("staking.pools[%d]", i)
			if !symbols[p.IndexPool] {
				return fmt.Errorf("%s: unknown index pool %q", field, p.IndexPool)
			}
			if p.UniswapPair && st.WrappedNative == "" {
				return fmt.Errorf("%s: uniswap pair pools need staking.wrappedNative", field)
			}
			if _, err := parseAmount(field+".rewardAmount", p.RewardAmount); err != nil {
				return err
			}
		}
	}
	names := make(map[string]bool, len(s.Vesting))
	for i, v := range s.Vesting {
		field := fmt.Sprintf("vesting[%d]", i)
		if strings.TrimSpace(v.Name) == "" || names[v.Name] {
			return fmt.Errorf("%s: name must be set and unique", field)
		}
		names[v.Name] = true
		switch v.Kind {
		case VestingTreasury, VestingDelegating, VestingLock:
		case VestingCancelable:
			if _, err := parseAddress(field+".terminator", v.Terminator); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s: unknown kind %q", field, v.Kind)
		}
		if _, err := parseAddress(field+".recipient", v.Recipient); err != nil {
			return err
		}
		if _, err := parseAmount(field+".amount", v.Amount); err != nil {
			return err
		}
	}
	for holder, amount := range s.Alloc {
		if _, err := parseAddress("alloc", holder); err != nil {
			return err
		}
		if _, err := parseAmount("alloc", amount); err != nil {
			return err
		}
	}
	return nil
}

func parseAddress(field, raw string) (crypto.Address, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func optionalAddress(field, raw string) (crypto.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return crypto.Address{}, nil
	}
	return parseAddress(field, raw)
}

func parseAmount(field, raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	return amount, nil
}

func optionalAmount(field, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return parseAmount(field, raw)
}

func mustAddress(raw string) crypto.Address {
	addr, _ := crypto.ParseAddress(raw)
	return addr
}

func mustAmount(raw string) *big.Int {
	amount, _ := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if amount == nil {
		return new(big.Int)
	}
	return amount
}
