package chain

import "errors"

var (
	ErrNodeUrlEmpty    = errors.New("chain: node url is empty")
	ErrChainIDMismatch = errors.New("chain: unexpected chain id")
)
