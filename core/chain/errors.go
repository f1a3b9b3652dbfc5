package chain

import "errors"

var (
	ErrNoContract        = errors.New("chain: no contract at address")
	ErrWrongKind         = errors.New("chain: contract kind mismatch")
	ErrAlreadyDeployed   = errors.New("chain: contract already deployed")
	ErrUnknownKind       = errors.New("chain: unknown contract kind")
	ErrUnknownMethod     = errors.New("chain: unknown method")
	ErrCallDepth         = errors.New("chain: max call depth exceeded")
	ErrInsufficientValue = errors.New("chain: insufficient native balance")
	ErrBadNonce          = errors.New("chain: invalid nonce")
	ErrWrongChainID      = errors.New("chain: transaction chain id mismatch")
	ErrBadArgument       = errors.New("chain: bad argument")
)
