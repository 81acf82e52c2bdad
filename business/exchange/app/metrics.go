package app

import (
	"context"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/bzz-exchange/business/exchange/domain"
	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/asset"
)

const meterName = "exchange"

const (
	opBuy    = "buy"
	opSell   = "sell"
	opSetFee = "set_fee"
	opSweep  = "sweep"
)

// exchangeMetrics holds OTEL metric instruments.
type exchangeMetrics struct {
	requests    metric.Int64Counter
	latency     metric.Float64Histogram
	feeRetained metric.Float64Counter
	venueVolume metric.Float64Counter
	bzzVolume   metric.Float64Counter
}

func (e *Exchange) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &exchangeMetrics{}

	e.metrics.requests, err = meter.Int64Counter(
		"exchange_requests_total",
		metric.WithDescription("Exchange requests by operation and outcome"),
	)
	if err != nil {
		return err
	}

	e.metrics.latency, err = meter.Float64Histogram(
		"exchange_request_latency_ms",
		metric.WithDescription("Exchange request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	e.metrics.feeRetained, err = meter.Float64Counter(
		"exchange_fee_retained_dai",
		metric.WithDescription("Fee retained by the exchange, in DAI"),
	)
	if err != nil {
		return err
	}

	e.metrics.venueVolume, err = meter.Float64Counter(
		"exchange_venue_volume",
		metric.WithDescription("Stablecoin volume routed through each venue, in coin units"),
	)
	if err != nil {
		return err
	}

	e.metrics.bzzVolume, err = meter.Float64Counter(
		"exchange_bzz_volume",
		metric.WithDescription("BZZ bought and sold"),
	)
	return err
}

func opAttrs(op string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("op", op))
}

func outcomeAttrs(op string, err error) metric.MeasurementOption {
	outcome := "ok"
	if err != nil {
		outcome = string(apperror.GetCode(err))
	}
	return metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome))
}

// units converts a raw token amount to whole units for metrics.
func (e *Exchange) units(tok Token, raw *big.Int) float64 {
	a, ok := e.assets.GetToken(e.chainID, tok.Address())
	if !ok || raw == nil || raw.Sign() < 0 {
		return 0
	}
	return asset.NewAmount(a, raw).ToFloat64()
}

func (e *Exchange) recordBuy(ctx context.Context, r *BuyReceipt, start time.Time) {
	e.metrics.requests.Add(ctx, 1, outcomeAttrs(opBuy, nil))
	e.metrics.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, opAttrs(opBuy))

	dai := e.tokens[domain.CoinDAI]
	e.metrics.feeRetained.Add(ctx, e.units(dai, r.FeeRetained), opAttrs(opBuy))
	e.metrics.bzzVolume.Add(ctx, e.units(e.bzz, r.BzzMinted), opAttrs(opBuy))
	e.metrics.venueVolume.Add(ctx, e.units(e.tokens[r.InputCoin], r.InputSpent),
		metric.WithAttributes(
			attribute.String("op", opBuy),
			attribute.String("venue", r.Venue.String()),
			attribute.String("coin", r.InputCoin.String()),
		))
}

func (e *Exchange) recordSell(ctx context.Context, r *SellReceipt, start time.Time) {
	e.metrics.requests.Add(ctx, 1, outcomeAttrs(opSell, nil))
	e.metrics.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, opAttrs(opSell))

	dai := e.tokens[domain.CoinDAI]
	e.metrics.feeRetained.Add(ctx, e.units(dai, r.FeeRetained), opAttrs(opSell))
	e.metrics.bzzVolume.Add(ctx, e.units(e.bzz, r.BzzSold), opAttrs(opSell))
	e.metrics.venueVolume.Add(ctx, e.units(e.tokens[r.OutputCoin], r.Payout),
		metric.WithAttributes(
			attribute.String("op", opSell),
			attribute.String("venue", r.Venue.String()),
			attribute.String("coin", r.OutputCoin.String()),
		))
}
