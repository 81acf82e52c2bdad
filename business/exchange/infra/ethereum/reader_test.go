package ethereum

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/logger"
)

var (
	curveAddr = common.HexToAddress("0x4F32Ab778e85C4aD0CEad54f8f82F5Ee74d46904")
	bzzAddr   = common.HexToAddress("0x19062190B1925b5b6689D7073fDfC8c2976EF8Cb")
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type callArgs struct {
	To    *common.Address `json:"to"`
	Input hexutil.Bytes   `json:"input"`
	Data  hexutil.Bytes   `json:"data"`
}

// curveNode answers eth_call like a curve whose buyPrice is 2n and
// sellReward is n. With fail set it returns an execution error.
func curveNode(t *testing.T, fail *atomic.Bool, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(BondingCurveABI))
	if err != nil {
		t.Fatal(err)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req rpcRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")

		reply := func(result any, rpcErr map[string]any) {
			resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
			if rpcErr != nil {
				resp["error"] = rpcErr
			} else {
				resp["result"] = result
			}
			_ = json.NewEncoder(w).Encode(resp)
		}

		if req.Method != "eth_call" || fail.Load() {
			reply(nil, map[string]any{"code": -32000, "message": "execution reverted"})
			return
		}

		var args callArgs
		_ = json.Unmarshal(req.Params[0], &args)
		input := args.Input
		if len(input) == 0 {
			input = args.Data
		}
		if args.To == nil || *args.To != curveAddr || len(input) < 4 {
			reply(nil, map[string]any{"code": -32000, "message": "bad call"})
			return
		}

		method, err := parsed.MethodById(input[:4])
		if err != nil {
			reply(nil, map[string]any{"code": -32000, "message": err.Error()})
			return
		}

		var out []byte
		switch method.Name {
		case "buyPrice", "sellReward":
			vals, _ := method.Inputs.Unpack(input[4:])
			n := vals[0].(*big.Int)
			if method.Name == "buyPrice" {
				n = new(big.Int).Mul(n, big.NewInt(2))
			}
			out, _ = method.Outputs.Pack(n)
		case "bondedToken":
			out, _ = method.Outputs.Pack(bzzAddr)
		default:
			out, _ = method.Outputs.Pack(common.Address{})
		}
		reply(hexutil.Encode(out), nil)
	}))
}

func newReader(t *testing.T, url string, failures uint32) *CurveReader {
	t.Helper()
	client, err := ethclient.Dial(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(client.Close)

	cfg := DefaultReaderConfig()
	cfg.RequestsPerSecond = 0
	cfg.Breaker.ConsecutiveFailures = failures
	r, err := NewCurveReader(client, curveAddr, cfg, logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestCurveReader_Quotes(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int32
	srv := curveNode(t, &fail, &calls)
	defer srv.Close()

	r := newReader(t, srv.URL, 5)
	ctx := context.Background()
	amount := big.NewInt(1_000_000)

	buy, err := r.BuyPrice(ctx, amount)
	if err != nil {
		t.Fatal(err)
	}
	if buy.Int64() != 2_000_000 {
		t.Errorf("expected buy price 2000000, got %s", buy)
	}

	sell, err := r.SellReward(ctx, amount)
	if err != nil {
		t.Fatal(err)
	}
	if sell.Cmp(amount) != 0 {
		t.Errorf("expected sell reward %s, got %s", amount, sell)
	}

	bonded, err := r.BondedToken(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if bonded != bzzAddr {
		t.Errorf("expected bonded token %s, got %s", bzzAddr.Hex(), bonded.Hex())
	}
}

func TestCurveReader_ErrorsTripBreaker(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int32
	fail.Store(true)
	srv := curveNode(t, &fail, &calls)
	defer srv.Close()

	r := newReader(t, srv.URL, 2)
	ctx := context.Background()
	if ok, _ := r.Healthy(); !ok {
		t.Fatal("expected a closed breaker to be healthy")
	}

	for i := range 2 {
		_, err := r.BuyPrice(ctx, big.NewInt(1))
		if !apperror.HasCode(err, apperror.CodeContractCallFailed) {
			t.Fatalf("call %d: expected %s, got %v", i, apperror.CodeContractCallFailed, err)
		}
	}

	before := calls.Load()
	_, err := r.BuyPrice(ctx, big.NewInt(1))
	if !apperror.HasCode(err, apperror.CodeCircuitOpen) {
		t.Errorf("expected %s, got %v", apperror.CodeCircuitOpen, err)
	}
	if calls.Load() != before {
		t.Error("expected the open breaker to skip the node")
	}
	if ok, msg := r.Healthy(); ok {
		t.Errorf("expected an open breaker to be unhealthy, got %q", msg)
	}
}
