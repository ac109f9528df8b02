package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	ReserveSubmittedEvent = "ReserveSubmitted"
	getReserveInfoMethod  = "getReserveInfo"
)

const proofOfReservesABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "user", "type": "address"},
			{"indexed": true, "internalType": "uint256", "name": "reserveId", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "timestamp", "type": "uint256"}
		],
		"name": "ReserveSubmitted",
		"type": "event"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "user", "type": "address"},
			{"internalType": "uint256", "name": "reserveId", "type": "uint256"}
		],
		"name": "getReserveInfo",
		"outputs": [
			{"internalType": "string", "name": "tokenSymbol", "type": "string"},
			{"internalType": "string", "name": "dataType", "type": "string"},
			{"internalType": "uint256", "name": "timestamp", "type": "uint256"},
			{"internalType": "bool", "name": "verified", "type": "bool"},
			{"internalType": "address", "name": "auditor", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "bytes32", "name": "encryptedBalance", "type": "bytes32"},
			{"internalType": "bytes", "name": "inputProof", "type": "bytes"},
			{"internalType": "string", "name": "tokenSymbol", "type": "string"},
			{"internalType": "string", "name": "dataType", "type": "string"}
		],
		"name": "submitEncryptedReserve",
		"outputs": [
			{"internalType": "uint256", "name": "reserveId", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var ErrUnexpectedLog = errors.New("log is not a ReserveSubmitted event")

// Backend is the subset of *ethclient.Client the contract adapter needs.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

type ReserveSubmitted struct {
	User            common.Address
	ReserveID       *big.Int
	Timestamp       *big.Int
	BlockNumber     uint64
	TransactionHash common.Hash
	Removed         bool
}

type ReserveInfo struct {
	TokenSymbol string
	DataType    string
	Timestamp   *big.Int
	Verified    bool
	Auditor     common.Address
}

func (r *ReserveInfo) Time() time.Time {
	if r.Timestamp == nil {
		return time.Time{}
	}
	return time.Unix(r.Timestamp.Int64(), 0).UTC()
}

type Contract struct {
	backend Backend
	address common.Address
	abi     abi.ABI
}

// ContractABI returns the parsed ProofOfReserves ABI.
func ContractABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(proofOfReservesABI))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded contract abi: %v", err))
	}
	return parsed
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return client, nil
}

func NewContract(backend Backend, address common.Address) *Contract {
	return &Contract{
		backend: backend,
		address: address,
		abi:     ContractABI(),
	}
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) LatestBlock(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}

func (c *Contract) HasCode(ctx context.Context) (bool, error) {
	code, err := c.backend.CodeAt(ctx, c.address, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// FilterReserveSubmitted returns raw ReserveSubmitted logs in [from, to].
func (c *Contract) FilterReserveSubmitted(ctx context.Context, from uint64, to uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{c.abi.Events[ReserveSubmittedEvent].ID}},
	}
	return c.backend.FilterLogs(ctx, query)
}

func (c *Contract) ParseReserveSubmitted(log types.Log) (*ReserveSubmitted, error) {
	event := c.abi.Events[ReserveSubmittedEvent]
	if len(log.Topics) != 3 || log.Topics[0] != event.ID {
		return nil, ErrUnexpectedLog
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s data: %w", ReserveSubmittedEvent, err)
	}
	timestamp, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s data: unexpected timestamp type %T", ReserveSubmittedEvent, values[0])
	}

	return &ReserveSubmitted{
		User:            common.BytesToAddress(log.Topics[1].Bytes()),
		ReserveID:       log.Topics[2].Big(),
		Timestamp:       timestamp,
		BlockNumber:     log.BlockNumber,
		TransactionHash: log.TxHash,
		Removed:         log.Removed,
	}, nil
}

func (c *Contract) GetReserveInfo(ctx context.Context, user common.Address, reserveID *big.Int) (*ReserveInfo, error) {
	input, err := c.abi.Pack(getReserveInfoMethod, user, reserveID)
	if err != nil {
		return nil, err
	}

	output, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", getReserveInfoMethod, err)
	}

	var info ReserveInfo
	if err := c.abi.UnpackIntoInterface(&info, getReserveInfoMethod, output); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", getReserveInfoMethod, err)
	}

	return &info, nil
}
