package ui

import (
	"strings"
	"testing"
)

func TestCard_Render(t *testing.T) {
	c := &Card{Title: "BUY"}
	c.Add("minted", "99.7 BZZ", TonePositive).
		Add("spent", "30.1 USDC", ToneNegative).
		Add("fee", "30 bps", ToneMuted)

	out := c.Render()
	for _, want := range []string{"BUY", "minted", "99.7 BZZ", "spent", "30.1 USDC", "30 bps"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestTable_Render(t *testing.T) {
	tbl := &Table{
		Headers: []string{"coin", "venue", "cost"},
		Rows: [][]string{
			{"USDC", "stableswap", "30.12"},
			{"USDT", "uniswap"},
		},
	}

	out := tbl.Render()
	for _, want := range []string{"coin", "venue", "stableswap", "30.12", "USDT", "uniswap"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "\n"); got < 4 {
		t.Errorf("expected a header and two rows inside a box, got %d lines", got+1)
	}
}
