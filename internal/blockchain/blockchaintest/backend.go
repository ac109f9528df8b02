// Package blockchaintest provides an in-memory blockchain.Backend that serves
// ProofOfReserves logs and getReserveInfo results.
package blockchaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"vaulttrust/internal/blockchain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrUnknownReserve = errors.New("unknown reserve")

type reserveKey struct {
	user      common.Address
	reserveID string
}

type Backend struct {
	mu        sync.Mutex
	head      uint64
	code      []byte
	logs      []types.Log
	reserves  map[reserveKey]blockchain.ReserveInfo
	filterErr error
	calls     int
}

func NewBackend() *Backend {
	return &Backend{
		code:     []byte{0x60, 0x80},
		reserves: make(map[reserveKey]blockchain.ReserveInfo),
	}
}

func (b *Backend) SetHead(head uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = head
}

func (b *Backend) SetCode(code []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.code = code
}

func (b *Backend) SetFilterError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filterErr = err
}

// AddReserve registers the getReserveInfo answer for (user, reserveID).
func (b *Backend) AddReserve(user common.Address, reserveID *big.Int, info blockchain.ReserveInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reserves[reserveKey{user: user, reserveID: reserveID.String()}] = info
}

// AddLog appends a log and moves the head forward when needed.
func (b *Backend) AddLog(log types.Log) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = append(b.logs, log)
	if log.BlockNumber > b.head {
		b.head = log.BlockNumber
	}
}

// FilterCalls returns how many times FilterLogs was invoked.
func (b *Backend) FilterCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *Backend) BlockNumber(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head, nil
}

func (b *Backend) FilterLogs(_ context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.filterErr != nil {
		return nil, b.filterErr
	}

	from := query.FromBlock.Uint64()
	to := query.ToBlock.Uint64()
	result := make([]types.Log, 0)
	for _, log := range b.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if !matchesAddress(query.Addresses, log.Address) {
			continue
		}
		if len(query.Topics) > 0 && len(query.Topics[0]) > 0 && (len(log.Topics) == 0 || log.Topics[0] != query.Topics[0][0]) {
			continue
		}
		result = append(result, log)
	}

	return result, nil
}

func (b *Backend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, ok := blockchain.ContractABI().Methods["getReserveInfo"]
	if !ok || len(call.Data) < 4 {
		return nil, errors.New("unsupported call")
	}

	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	user := args[0].(common.Address)
	reserveID := args[1].(*big.Int)

	b.mu.Lock()
	info, ok := b.reserves[reserveKey{user: user, reserveID: reserveID.String()}]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownReserve, user.Hex(), reserveID)
	}

	timestamp := info.Timestamp
	if timestamp == nil {
		timestamp = new(big.Int)
	}
	return method.Outputs.Pack(info.TokenSymbol, info.DataType, timestamp, info.Verified, info.Auditor)
}

func (b *Backend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code, nil
}

// ReserveSubmittedLog builds a log exactly as the contract would emit it.
func ReserveSubmittedLog(contract common.Address, user common.Address, reserveID *big.Int, timestamp int64, blockNumber uint64, txHash common.Hash) types.Log {
	event := blockchain.ContractABI().Events[blockchain.ReserveSubmittedEvent]

	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(timestamp))
	if err != nil {
		panic(err)
	}

	return types.Log{
		Address: contract,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(user.Bytes()),
			common.BigToHash(reserveID),
		},
		Data:        data,
		BlockNumber: blockNumber,
		TxHash:      txHash,
	}
}

func matchesAddress(addresses []common.Address, address common.Address) bool {
	if len(addresses) == 0 {
		return true
	}
	for _, candidate := range addresses {
		if candidate == address {
			return true
		}
	}
	return false
}
