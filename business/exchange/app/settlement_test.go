package app_test

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fd1az/bzz-exchange/business/exchange/devnet"
	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/business/exchange/infra/omnibridge"
	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/ledger"
)

var (
	remote  = common.HexToAddress("0x00000000000000000000000000000000000C0001")
	batchID = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")

	// abi.encode(address)
	relayPayload = hexutil.MustDecode("0x" +
		"00000000000000000000000000000000000000000000000000000000000c0001")

	// abi.encode(address, bytes) carrying abi.encode(bytes32 batchID)
	relayAndCallPayload = hexutil.MustDecode("0x" +
		"00000000000000000000000000000000000000000000000000000000000c0001" +
		"0000000000000000000000000000000000000000000000000000000000000040" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"1111111111111111111111111111111111111111111111111111111111111111")
)

func TestRelayPayloadsMatchEncoders(t *testing.T) {
	if !bytes.Equal(relayPayload, domain.EncodeRelay(remote)) {
		t.Errorf("relay payload mismatch: %x", domain.EncodeRelay(remote))
	}
	enc, err := domain.EncodeRelayAndCall(remote, domain.EncodeTopUp(batchID))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(relayAndCallPayload, enc) {
		t.Errorf("relay-and-call payload mismatch: %x", enc)
	}
}

func TestBuy_Settlement(t *testing.T) {
	tests := []struct {
		name     string
		opts     domain.Options
		payload  []byte
		kind     domain.SettlementKind
		messages int
		data     []byte
	}{
		{"local", 0, nil, domain.SettleLocal, 0, nil},
		{"relay_bit_empty_segment", domain.OptRelay, nil, domain.SettleLocal, 0, nil},
		{"relay", domain.OptRelay, relayPayload, domain.SettleRelay, 1, nil},
		{"relay_and_call", domain.OptRelay, relayAndCallPayload, domain.SettleRelayAndCall, 1, domain.EncodeTopUp(batchID)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t, func(p *devnet.Params) { p.FeeBps = 25 })
			bzzBefore := env.Balance(env.BZZ, buyer)

			req := buyRequest(combo{domain.CoinUSDC, domain.VenueUniswap}, bzz(1_000), unlimited())
			req.Options, req.Payload = tt.opts, tt.payload
			r, err := env.Exchange.Buy(context.Background(), buyer, req)
			if err != nil {
				t.Fatal(err)
			}
			if r.Settlement.Kind != tt.kind {
				t.Errorf("expected %s settlement, got %s", tt.kind, r.Settlement.Kind)
			}

			msgs, err := omnibridge.ParseMessages(env.Bridge.Address(), r.Logs)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != tt.messages {
				t.Fatalf("expected %d bridge messages, got %d", tt.messages, len(msgs))
			}

			gained := new(big.Int).Sub(env.Balance(env.BZZ, buyer), bzzBefore)
			locked := env.Balance(env.BZZ, env.Bridge.Address())
			if tt.messages == 0 {
				if gained.Cmp(r.BzzMinted) != 0 {
					t.Errorf("expected buyer to gain %s BZZ, got %s", r.BzzMinted, gained)
				}
				if locked.Sign() != 0 {
					t.Errorf("expected nothing locked in the bridge, got %s", locked)
				}
				return
			}

			m := msgs[0]
			if gained.Sign() != 0 {
				t.Errorf("expected relayed BZZ to bypass the buyer, gained %s", gained)
			}
			if m.Receiver != remote || m.Sender != env.Exchange.Address() || m.Token != env.BZZ.Address() {
				t.Errorf("unexpected message routing: %+v", m)
			}
			if m.Value.Cmp(r.BzzMinted) != 0 || locked.Cmp(r.BzzMinted) != 0 {
				t.Errorf("expected %s relayed and locked, message %s, locked %s", r.BzzMinted, m.Value, locked)
			}
			if !bytes.Equal(m.Data, tt.data) {
				t.Errorf("expected data %x, got %x", tt.data, m.Data)
			}
			if tt.kind == domain.SettleRelayAndCall {
				id, err := domain.DecodeTopUp(m.Data)
				if err != nil || id != batchID {
					t.Errorf("expected top-up of %s, got %s (%v)", batchID, id, err)
				}
			}
			if bal := env.Balance(env.BZZ, env.Exchange.Address()); bal.Sign() != 0 {
				t.Errorf("expected the exchange to hold no BZZ, got %s", bal)
			}
			assertAlternatesEmpty(t, env)
		})
	}
}

func TestBuy_InvalidPayload(t *testing.T) {
	dirty := bytes.Clone(relayPayload)
	dirty[0] = 0x01

	tests := []struct {
		name    string
		opts    domain.Options
		payload []byte
	}{
		{"relay_31_bytes", domain.OptRelay, relayPayload[:31]},
		{"relay_dirty_address", domain.OptRelay, dirty},
		{"relay_zero_address", domain.OptRelay, make([]byte, 32)},
		{"unknown_option_bit", domain.Options(1 << 2), nil},
		{"payload_without_bits", 0, relayPayload},
		{"permit_short", domain.OptPermit, make([]byte, 100)},
		{"both_bits_garbage", domain.OptPermit | domain.OptRelay, []byte{1, 2, 3}},
	}

	env := newEnv(t, nil)
	block := env.Chain.BlockNumber()
	before := env.Balance(env.DAI, buyer)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := buyRequest(combo{domain.CoinDAI, domain.VenueNone}, bzz(10), unlimited())
			req.Options, req.Payload = tt.opts, tt.payload
			_, err := env.Exchange.Buy(context.Background(), buyer, req)
			if !apperror.HasCode(err, apperror.CodeInvalidPayload) {
				t.Errorf("expected %s, got %v", apperror.CodeInvalidPayload, err)
			}
		})
	}
	if env.Chain.BlockNumber() != block {
		t.Error("expected payload errors to be reported before any transaction")
	}
	if got := env.Balance(env.DAI, buyer); got.Cmp(before) != 0 {
		t.Errorf("buyer DAI %s -> %s", before, got)
	}
}

func TestBuy_RelayFailureReverts(t *testing.T) {
	env := newEnv(t, nil)
	supply := totalSupply(env, env.BZZ)
	daiBefore := env.Balance(env.DAI, buyer)

	// the bridge can only pull what the exchange approved; revoke it
	if _, err := env.Chain.Execute(context.Background(), env.Exchange.Address(), func(tx *ledger.Tx) error {
		return env.BZZ.Approve(tx, env.Exchange.Address(), env.Bridge.Address(), big.NewInt(0))
	}); err != nil {
		t.Fatal(err)
	}

	req := buyRequest(combo{domain.CoinDAI, domain.VenueNone}, bzz(1_000), unlimited())
	req.Options, req.Payload = domain.OptRelay, relayPayload
	_, err := env.Exchange.Buy(context.Background(), buyer, req)
	if !apperror.HasCode(err, apperror.CodeTransferFailed) {
		t.Fatalf("expected %s, got %v", apperror.CodeTransferFailed, err)
	}

	if got := totalSupply(env, env.BZZ); got.Cmp(supply) != 0 {
		t.Errorf("BZZ supply %s -> %s after failed relay", supply, got)
	}
	if got := env.Balance(env.DAI, buyer); got.Cmp(daiBefore) != 0 {
		t.Errorf("buyer DAI %s -> %s after failed relay", daiBefore, got)
	}
}
