package domain

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/bzz-exchange/internal/apperror"
)

func TestParseSettlement(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000deadbeef")

	plain, _ := hex.DecodeString("00000000000000000000000000000000000000000000000000000000deadbeef")
	withCall, err := EncodeRelayAndCall(to, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	dirty := bytes.Clone(plain)
	dirty[0] = 0x01

	tests := []struct {
		name     string
		seg      []byte
		wantKind SettlementKind
		wantData []byte
		wantCode apperror.Code
	}{
		{"empty_is_local", nil, SettleLocal, nil, ""},
		{"one_word_is_relay", plain, SettleRelay, nil, ""},
		{"longer_is_relay_and_call", withCall, SettleRelayAndCall, []byte("x"), ""},
		{"short", plain[:31], 0, nil, apperror.CodeInvalidPayload},
		{"single_byte", []byte{0x01}, 0, nil, apperror.CodeInvalidPayload},
		{"dirty_padding", dirty, 0, nil, apperror.CodeInvalidPayload},
		{"zero_recipient", make([]byte, 32), 0, nil, apperror.CodeInvalidPayload},
		{"truncated_call", withCall[:33], 0, nil, apperror.CodeInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSettlement(tt.seg)
			if tt.wantCode != "" {
				if !apperror.HasCode(err, tt.wantCode) {
					t.Fatalf("expected %s, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Kind != tt.wantKind {
				t.Errorf("expected %s, got %s", tt.wantKind, s.Kind)
			}
			if s.Kind != SettleLocal && s.Recipient != to {
				t.Errorf("expected recipient %s, got %s", to.Hex(), s.Recipient.Hex())
			}
			if !bytes.Equal(s.Data, tt.wantData) {
				t.Errorf("expected data %q, got %q", tt.wantData, s.Data)
			}
		})
	}
}

func TestEncodeRelay_MatchesLiteral(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000deadbeef")
	want, _ := hex.DecodeString("00000000000000000000000000000000000000000000000000000000deadbeef")
	if got := EncodeRelay(to); !bytes.Equal(got, want) {
		t.Errorf("expected %x, got %x", want, got)
	}
}

func TestTopUpRoundTrip(t *testing.T) {
	batch := common.HexToHash("0x1234")
	aux := EncodeTopUp(batch)

	seg, err := EncodeRelayAndCall(common.HexToAddress("0xabc"), aux)
	if err != nil {
		t.Fatal(err)
	}
	s, err := ParseSettlement(seg)
	if err != nil {
		t.Fatal(err)
	}

	got, err := DecodeTopUp(s.Data)
	if err != nil {
		t.Fatal(err)
	}
	if got != batch {
		t.Errorf("expected %s, got %s", batch.Hex(), got.Hex())
	}
}
