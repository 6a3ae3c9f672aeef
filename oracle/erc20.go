package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meridianpay/treasury/pkg/common/errs"
)

// BalanceReader is the authoritative balance oracle: a single atomic read
// of an account's stablecoin balance in base units.
type BalanceReader interface {
	BalanceOf(ctx context.Context, accountAddress string) (*big.Int, error)
}

// balanceOf(address) selector.
const balanceOfSelector = "0x70a08231"

// ERC20Reader reads token balances through an EVM JSON-RPC endpoint with
// eth_call. One read is one RPC round trip.
type ERC20Reader struct {
	rpcURL       string
	tokenAddress string
	client       *http.Client
	log          *zap.Logger
}

func NewERC20Reader(rpcURL, tokenAddress string, timeout time.Duration, log *zap.Logger) *ERC20Reader {
	return &ERC20Reader{
		rpcURL:       rpcURL,
		tokenAddress: tokenAddress,
		client:       &http.Client{Timeout: timeout},
		log:          log,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r *ERC20Reader) BalanceOf(ctx context.Context, accountAddress string) (*big.Int, error) {
	data, err := encodeBalanceOf(accountAddress)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_call",
		Params: []any{
			map[string]string{"to": r.tokenAddress, "data": data},
			"latest",
		},
	})
	if err != nil {
		return nil, errs.Internal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errs.Persistence(fmt.Errorf("rpc unreachable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.RateLimited("rpc endpoint rate limited", time.Now().Add(30*time.Second))
	}
	if resp.StatusCode >= 300 {
		return nil, errs.Persistence(fmt.Errorf("rpc returned %d", resp.StatusCode))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, errs.Persistence(fmt.Errorf("malformed rpc response: %w", err))
	}
	if rpcResp.Error != nil {
		return nil, errs.Persistence(fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
	}

	return decodeQuantity(rpcResp.Result)
}

// encodeBalanceOf builds the calldata: selector + address left-padded to
// 32 bytes.
func encodeBalanceOf(accountAddress string) (string, error) {
	addr := strings.TrimPrefix(strings.ToLower(accountAddress), "0x")
	if len(addr) != 40 {
		return "", errs.Validation("account %q is not a well-formed address", accountAddress)
	}
	for _, c := range addr {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return "", errs.Validation("account %q is not a well-formed address", accountAddress)
		}
	}
	return balanceOfSelector + strings.Repeat("0", 24) + addr, nil
}

func decodeQuantity(result string) (*big.Int, error) {
	hexStr := strings.TrimPrefix(result, "0x")
	if hexStr == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		return nil, errs.Persistence(fmt.Errorf("malformed balance quantity %q", result))
	}
	return n, nil
}
