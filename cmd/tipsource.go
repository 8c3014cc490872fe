package main

import "github.com/ethereum/go-ethereum/common"

// staticTipSource wraps the configured TIP_ACCOUNTS allow-list, the
// production analogue of the fixedTipSource test double in
// internal/engine/engine_test.go.
type staticTipSource struct {
	accounts []common.Address
}

func (s staticTipSource) TipAccounts() []common.Address { return s.accounts }
