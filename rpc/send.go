package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"ndxgov/core/chain"
	"ndxgov/core/types"
)

// ndx_sendTransaction [signedTx] applies a signed transaction to the block
// being built. A reverted call still consumes the nonce and is reported in
// the result rather than as an error.
func (s *Server) sendTransaction(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	raw, rpcErr := param(params, 0, "transaction")
	if rpcErr != nil {
		return nil, rpcErr
	}
	var tx types.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, invalidParams("invalid transaction", err)
	}
	if tx.R == nil || tx.S == nil {
		return nil, invalidParams("transaction is not signed", nil)
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, invalidParams("invalid transaction", err)
	}
	if !s.rememberTx(hash, time.Now()) {
		return nil, &Error{Code: codeDuplicateTx, Message: "transaction already submitted", Data: hash32(hash)}
	}
	receipt, err := s.chain.ApplyTransaction(ctx, &tx)
	if err != nil {
		s.forgetTx(hash)
		switch {
		case errors.Is(err, chain.ErrBadNonce), errors.Is(err, chain.ErrWrongChainID), errors.Is(err, chain.ErrBadArgument):
			return nil, invalidParams(err.Error(), nil)
		default:
			return nil, invalidParams("transaction rejected", err)
		}
	}
	s.logger.Info("transaction applied",
		slog.String("tx", hash32(hash)),
		slog.String("from", receipt.From),
		slog.String("signature", tx.Signature),
		slog.Bool("success", receipt.Success))
	return SendResult{
		Hash:    hash32(receipt.TxHash),
		From:    receipt.From,
		Height:  receipt.Height,
		Success: receipt.Success,
		Error:   receipt.Error,
		Logs:    receipt.Logs,
	}, nil
}
