// Package di contains dependency injection tokens for the exchange context.
package di

import (
	"github.com/fd1az/bzz-exchange/business/exchange/app"
	"github.com/fd1az/bzz-exchange/business/exchange/devnet"
	"github.com/fd1az/bzz-exchange/business/exchange/infra/ethereum"
	"github.com/fd1az/bzz-exchange/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Exchange = di.NewToken[*app.Exchange]("exchange.Exchange")
	// CurveReader resolves to nil unless a node and curve address are configured.
	CurveReader = di.NewToken[*ethereum.CurveReader]("exchange.CurveReader")
)

// Private dependency tokens - internal to exchange module
var (
	Env     = di.NewToken[*devnet.Env]("exchange:devnet")
	Account = di.NewToken[devnet.Account]("exchange:account")
)

func GetExchange(c di.ServiceRegistry) *app.Exchange {
	return di.GetToken(c, Exchange)
}

func GetCurveReader(c di.ServiceRegistry) *ethereum.CurveReader {
	return di.GetToken(c, CurveReader)
}

func GetEnv(c di.ServiceRegistry) *devnet.Env {
	return di.GetToken(c, Env)
}

func GetAccount(c di.ServiceRegistry) devnet.Account {
	return di.GetToken(c, Account)
}
