package exchange

import (
	"context"
	"fmt"

	exchangeDI "github.com/fd1az/bzz-exchange/business/exchange/di"
	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/internal/di"
	"github.com/fd1az/bzz-exchange/internal/health"
)

// RegisterHealthChecks adds the ledger, the exchange balance invariant and,
// when configured, the remote curve reader.
func RegisterHealthChecks(s *health.Server, sr di.ServiceRegistry) {
	env := exchangeDI.GetEnv(sr)
	ex := exchangeDI.GetExchange(sr)

	s.RegisterCheck("ledger", func(context.Context) (bool, string) {
		return true, fmt.Sprintf("block %d", env.Chain.BlockNumber())
	})

	// USDC and USDT never stay on the exchange between requests.
	s.RegisterCheck("exchange", func(context.Context) (bool, string) {
		for _, c := range domain.Coins {
			if c.IsCollateral() {
				continue
			}
			if bal := env.Balance(env.Token(c), ex.Address()); bal.Sign() != 0 {
				return false, fmt.Sprintf("holds %s raw %s", bal, c)
			}
		}
		return true, fmt.Sprintf("fee %d bps", ex.Fee())
	})

	if reader := exchangeDI.GetCurveReader(sr); reader != nil {
		s.RegisterCheck("curve-reader", func(context.Context) (bool, string) {
			return reader.Healthy()
		})
	}
}
