package genesis

import (
	"errors"
	"fmt"
	"sort"

	"ndxgov/core/chain"
	"ndxgov/core/types"
	"ndxgov/crypto"
	"ndxgov/native/amm"
	"ndxgov/native/bank"
	"ndxgov/native/governance"
	"ndxgov/native/indexpool"
	"ndxgov/native/metagov"
	"ndxgov/native/staking"
	"ndxgov/native/timelock"
	"ndxgov/native/token"
	"ndxgov/native/vesting"
)

// System contract addresses are derived from their names.
var (
	TokenAddress          = crypto.ContractAddress("ndx/token")
	TimelockAddress       = crypto.ContractAddress("ndx/timelock")
	GovernorAddress       = crypto.ContractAddress("ndx/governor")
	MetaGovAddress        = crypto.ContractAddress("ndx/metagov")
	RegistryAddress       = crypto.ContractAddress("ndx/indexpool/registry")
	StakingFactoryAddress = crypto.ContractAddress("ndx/staking/factory")
	DefaultAMMFactory     = crypto.ContractAddress("ndx/amm/factory")
)

var ErrAlreadyInitialized = errors.New("genesis: chain already initialized")

func BankTokenAddress(symbol string) crypto.Address {
	return crypto.ContractAddress("ndx/bank/" + symbol)
}

func VestingAddress(name string) crypto.Address {
	return crypto.ContractAddress("ndx/vesting/" + name)
}

// Deployment lists the contracts created by Build.
type Deployment struct {
	Token          crypto.Address
	Timelock       crypto.Address
	Governor       crypto.Address
	MetaGov        crypto.Address
	Registry       crypto.Address
	StakingFactory crypto.Address
	BankTokens     map[string]crypto.Address
	Vesting        map[string]crypto.Address
	Header         *types.Header
}

// Register makes every native contract kind available on c.
func Register(c *chain.Chain) {
	token.Register(c)
	timelock.Register(c)
	governance.Register(c)
	metagov.Register(c)
	bank.Register(c)
	indexpool.Register(c)
	staking.Register(c)
	vesting.Register(c)
}

// Initialized reports whether the Ndx token already exists on c.
func Initialized(c *chain.Chain) (bool, error) {
	var kind string
	err := c.View(func(ctx *chain.Context) error {
		var err error
		kind, err = ctx.KindOf(TokenAddress)
		return err
	})
	return kind != "", err
}

// Build deploys the system described by spec onto an empty chain and seals
// the genesis block. Every deployment runs in one transition from the token
// holder's account, so a failure leaves the chain untouched.
func Build(c *chain.Chain, spec *Spec) (*Deployment, error) {
	if spec == nil {
		return nil, errors.New("genesis: spec must not be nil")
	}
	if spec.GenesisTimestamp() == 0 {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}
	if c.ChainID() != spec.ChainID {
		return nil, fmt.Errorf("genesis: chain id %d does not match spec %d", c.ChainID(), spec.ChainID)
	}
	if ok, err := Initialized(c); err != nil {
		return nil, err
	} else if ok || c.Head() != nil {
		return nil, ErrAlreadyInitialized
	}
	ts := spec.GenesisTimestamp()
	c.Clock().Set(1, ts)

	holder := mustAddress(spec.Token.Holder)
	d := &Deployment{
		Token:      TokenAddress,
		Timelock:   TimelockAddress,
		Governor:   GovernorAddress,
		BankTokens: make(map[string]crypto.Address, len(spec.BankTokens)),
		Vesting:    make(map[string]crypto.Address, len(spec.Vesting)),
	}
	err := c.Execute(holder, func(ctx *chain.Context) error {
		if err := deployGovernance(ctx, spec, holder, d); err != nil {
			return err
		}
		if err := deployBankTokens(ctx, spec, d); err != nil {
			return err
		}
		if err := deployStaking(ctx, spec, d); err != nil {
			return err
		}
		return deployVesting(ctx, spec, d)
	})
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	for _, holder := range sortedKeys(spec.Alloc) {
		amount := mustAmount(spec.Alloc[holder])
		if amount.Sign() == 0 {
			continue
		}
		if err := c.Credit(mustAddress(holder), amount); err != nil {
			return nil, fmt.Errorf("genesis: alloc %s: %w", holder, err)
		}
	}
	header, err := c.SealBlock(ts)
	if err != nil {
		return nil, err
	}
	d.Header = header
	return d, nil
}

func deployGovernance(ctx *chain.Context, spec *Spec, holder crypto.Address, d *Deployment) error {
	minter := TimelockAddress
	if spec.Token.Minter != "" {
		minter = mustAddress(spec.Token.Minter)
	}
	mintAfter := spec.Token.MintingAllowedAfter
	if mintAfter == 0 {
		mintAfter = ctx.Timestamp() + token.MinimumTimeBetweenMints
	}
	if _, err := token.Deploy(ctx, TokenAddress, holder, minter, mintAfter); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	delay := spec.Timelock.Delay
	if delay == 0 {
		delay = timelock.MinimumDelay
	}
	if _, err := timelock.Deploy(ctx, TimelockAddress, GovernorAddress, delay); err != nil {
		return fmt.Errorf("timelock: %w", err)
	}
	if _, err := governance.Deploy(ctx, GovernorAddress, TimelockAddress, TokenAddress, governorParams(spec)); err != nil {
		return fmt.Errorf("governor: %w", err)
	}
	if m := spec.MetaGovernance; m != nil {
		external := GovernorAddress
		if m.ExternalGovernor != "" {
			external = mustAddress(m.ExternalGovernor)
		}
		if _, err := metagov.Deploy(ctx, MetaGovAddress, TokenAddress, external, m.VotingGracePeriod); err != nil {
			return fmt.Errorf("metagov: %w", err)
		}
		d.MetaGov = MetaGovAddress
	}
	return nil
}

func governorParams(spec *Spec) governance.Params {
	g := spec.Governance
	p := governance.DefaultParams(g.PermanentVotingPeriodAfter)
	if g.PermanentVotingPeriodAfter == 0 {
		p.PermanentVotingPeriodAfter = spec.GenesisTimestamp()
	}
	if g.Quorum != "" {
		p.Quorum = mustAmount(g.Quorum)
	}
	if g.ProposalThreshold != "" {
		p.ProposalThreshold = mustAmount(g.ProposalThreshold)
	}
	if g.MaxOperations != 0 {
		p.MaxOperations = g.MaxOperations
	}
	if g.VotingDelay != 0 {
		p.VotingDelay = g.VotingDelay
	}
	if g.VotingPeriod != 0 {
		p.VotingPeriod = g.VotingPeriod
	}
	if g.PermanentVotingPeriod != 0 {
		p.PermanentVotingPeriod = g.PermanentVotingPeriod
	}
	if g.Guardian != "" {
		p.Guardian = mustAddress(g.Guardian)
	}
	return p
}

func ammFactory(spec *Spec) crypto.Address {
	if spec.Staking != nil && spec.Staking.AMMFactory != "" {
		return mustAddress(spec.Staking.AMMFactory)
	}
	return DefaultAMMFactory
}

// deployBankTokens mints allocations from the holder frame, then hands
// ownership of each token to the timelock.
func deployBankTokens(ctx *chain.Context, spec *Spec, d *Deployment) error {
	for _, ts := range spec.BankTokens {
		addr := BankTokenAddress(ts.Symbol)
		if len(ts.PairOf) == 2 {
			var err error
			addr, err = amm.PairFor(ammFactory(spec), d.BankTokens[ts.PairOf[0]], d.BankTokens[ts.PairOf[1]])
			if err != nil {
				return fmt.Errorf("bank token %s: %w", ts.Symbol, err)
			}
		}
		tok, err := bank.Deploy(ctx, addr, bank.Metadata{Name: ts.Name, Symbol: ts.Symbol, Decimals: ts.Decimals})
		if err != nil {
			return fmt.Errorf("bank token %s: %w", ts.Symbol, err)
		}
		for _, holder := range sortedKeys(ts.Alloc) {
			amount := mustAmount(ts.Alloc[holder])
			if amount.Sign() == 0 {
				continue
			}
			if err := tok.Mint(ctx, mustAddress(holder), amount); err != nil {
				return fmt.Errorf("bank token %s: mint: %w", ts.Symbol, err)
			}
		}
		if err := tok.TransferOwnership(ctx, TimelockAddress); err != nil {
			return err
		}
		d.BankTokens[ts.Symbol] = addr
	}
	if len(spec.IndexPools) == 0 && spec.Staking == nil {
		return nil
	}
	registry, err := indexpool.Deploy(ctx, RegistryAddress, ctx.Self())
	if err != nil {
		return fmt.Errorf("index pool registry: %w", err)
	}
	for _, sym := range spec.IndexPools {
		if err := registry.AddPool(ctx, d.BankTokens[sym]); err != nil {
			return fmt.Errorf("index pool %s: %w", sym, err)
		}
	}
	d.Registry = RegistryAddress
	return registry.TransferOwnership(ctx, TimelockAddress)
}

func deployStaking(ctx *chain.Context, spec *Spec, d *Deployment) error {
	st := spec.Staking
	if st == nil {
		return nil
	}
	cfg := staking.FactoryConfig{
		RewardsToken:          TokenAddress,
		StakingRewardsGenesis: st.Genesis,
		PoolRegistry:          RegistryAddress,
		AMMFactory:            ammFactory(spec),
	}
	if st.WrappedNative != "" {
		cfg.WrappedNative = d.BankTokens[st.WrappedNative]
	}
	factory, err := staking.DeployFactory(ctx, StakingFactoryAddress, cfg)
	if err != nil {
		return fmt.Errorf("staking factory: %w", err)
	}
	for _, p := range st.Pools {
		pool := d.BankTokens[p.IndexPool]
		reward := mustAmount(p.RewardAmount)
		if p.UniswapPair {
			err = factory.DeployStakingRewardsForPoolUniswapPair(ctx, pool, reward, p.Duration)
		} else {
			err = factory.DeployStakingRewardsForPool(ctx, pool, reward, p.Duration)
		}
		if err != nil {
			return fmt.Errorf("staking pool %s: %w", p.IndexPool, err)
		}
	}
	if st.RewardsBudget != "" {
		if budget := mustAmount(st.RewardsBudget); budget.Sign() > 0 {
			if err := token.At(TokenAddress).Transfer(ctx, StakingFactoryAddress, budget); err != nil {
				return fmt.Errorf("staking rewards budget: %w", err)
			}
		}
	}
	d.StakingFactory = StakingFactoryAddress
	return factory.TransferOwnership(ctx, TimelockAddress)
}

func deployVesting(ctx *chain.Context, spec *Spec, d *Deployment) error {
	ndx := token.At(TokenAddress)
	for _, v := range spec.Vesting {
		addr := VestingAddress(v.Name)
		recipient := mustAddress(v.Recipient)
		amount := mustAmount(v.Amount)
		begin := v.Begin
		if begin == 0 {
			begin = ctx.Timestamp()
		}
		schedule := vesting.Schedule{Token: TokenAddress, Recipient: recipient, Amount: amount, Begin: begin, Cliff: v.Cliff, End: v.End}
		if schedule.Cliff == 0 {
			schedule.Cliff = begin
		}
		var err error
		switch v.Kind {
		case VestingTreasury:
			_, err = vesting.DeployTreasuryVester(ctx, addr, schedule)
		case VestingDelegating:
			_, err = vesting.DeployDelegatingVester(ctx, addr, schedule)
		case VestingCancelable:
			_, err = vesting.DeployCancelableVester(ctx, addr, mustAddress(v.Terminator), schedule)
		case VestingLock:
			_, err = vesting.DeployLock(ctx, addr, recipient, TokenAddress, v.End)
		default:
			err = fmt.Errorf("unknown kind %q", v.Kind)
		}
		if err != nil {
			return fmt.Errorf("vesting %s: %w", v.Name, err)
		}
		if err := ndx.Transfer(ctx, addr, amount); err != nil {
			return fmt.Errorf("vesting %s: fund: %w", v.Name, err)
		}
		d.Vesting[v.Name] = addr
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
