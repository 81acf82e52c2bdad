// Package ethereum reads bonding curve prices from a deployed contract over
// JSON-RPC.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/bzz-exchange/internal/apperror"
	"github.com/fd1az/bzz-exchange/internal/circuitbreaker"
	"github.com/fd1az/bzz-exchange/internal/logger"
	"github.com/fd1az/bzz-exchange/internal/ratelimit"
)

const (
	tracerName = "curve-reader"
	meterName  = "curve-reader"
)

// ReaderConfig tunes the reader's client-side protection.
type ReaderConfig struct {
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Breaker           circuitbreaker.Config
}

// DefaultReaderConfig is 10 rps, burst 5, 10s per call.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		RequestsPerSecond: 10,
		Burst:             5,
		Timeout:           10 * time.Second,
		Breaker:           circuitbreaker.DefaultConfig("curve-reader"),
	}
}

type readerMetrics struct {
	callsTotal  metric.Int64Counter
	callErrors  metric.Int64Counter
	callLatency metric.Float64Histogram
}

// CurveReader quotes buyPrice and sellReward with eth_call.
type CurveReader struct {
	client  ethereum.ContractCaller
	curve   common.Address
	abi     abi.ABI
	timeout time.Duration

	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[[]byte]
	logger  logger.LoggerInterface

	tracer  trace.Tracer
	metrics *readerMetrics
}

// NewCurveReader builds a reader for the curve at addr. An *ethclient.Client
// satisfies client.
func NewCurveReader(client ethereum.ContractCaller, addr common.Address, cfg ReaderConfig, log logger.LoggerInterface) (*CurveReader, error) {
	parsed, err := abi.JSON(strings.NewReader(BondingCurveABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse curve ABI: %w", err)
	}

	r := &CurveReader{
		client:  client,
		curve:   addr,
		abi:     parsed,
		timeout: cfg.Timeout,
		limiter: ratelimit.NewWithBurst(cfg.RequestsPerSecond, cfg.Burst),
		cb:      circuitbreaker.New[[]byte](cfg.Breaker),
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}
	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return r, nil
}

func (r *CurveReader) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	r.metrics = &readerMetrics{}

	r.metrics.callsTotal, err = meter.Int64Counter(
		"curve_reader_calls_total",
		metric.WithDescription("Total eth_call requests to the bonding curve"),
	)
	if err != nil {
		return err
	}

	r.metrics.callErrors, err = meter.Int64Counter(
		"curve_reader_errors_total",
		metric.WithDescription("Failed eth_call requests to the bonding curve"),
	)
	if err != nil {
		return err
	}

	r.metrics.callLatency, err = meter.Float64Histogram(
		"curve_reader_latency_ms",
		metric.WithDescription("eth_call latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// Healthy reports false while the breaker is open.
func (r *CurveReader) Healthy() (bool, string) {
	state := r.cb.State()
	return state != gobreaker.StateOpen, "breaker " + state.String()
}

// Address is the curve being read.
func (r *CurveReader) Address() common.Address { return r.curve }

// BuyPrice is the collateral the curve charges to mint amount.
func (r *CurveReader) BuyPrice(ctx context.Context, amount *big.Int) (*big.Int, error) {
	return r.callUint(ctx, "buyPrice", amount)
}

// SellReward is the collateral the curve pays to redeem amount.
func (r *CurveReader) SellReward(ctx context.Context, amount *big.Int) (*big.Int, error) {
	return r.callUint(ctx, "sellReward", amount)
}

// BondedToken is the address of the curve's bonded token.
func (r *CurveReader) BondedToken(ctx context.Context) (common.Address, error) {
	return r.callAddress(ctx, "bondedToken")
}

// CollateralToken is the address of the curve's collateral token.
func (r *CurveReader) CollateralToken(ctx context.Context) (common.Address, error) {
	return r.callAddress(ctx, "collateralToken")
}

func (r *CurveReader) callUint(ctx context.Context, method string, amount *big.Int) (*big.Int, error) {
	out, err := r.call(ctx, method, amount)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext(fmt.Sprintf("%s: unexpected output type %T", method, out[0])))
	}
	return v, nil
}

func (r *CurveReader) callAddress(ctx context.Context, method string) (common.Address, error) {
	out, err := r.call(ctx, method)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext(fmt.Sprintf("%s: unexpected output type %T", method, out[0])))
	}
	return v, nil
}

func (r *CurveReader) call(ctx context.Context, method string, args ...any) ([]any, error) {
	ctx, span := r.tracer.Start(ctx, "curve_reader."+method,
		trace.WithAttributes(attribute.String("curve", r.curve.Hex())),
	)
	defer span.End()

	start := time.Now()
	r.metrics.callsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
	defer func() {
		r.metrics.callLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("method", method)))
	}()

	out, err := r.doCall(ctx, method, args...)
	if err != nil {
		r.metrics.callErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn(ctx, "curve call failed", "method", method, "error", err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	r.logger.Debug(ctx, "curve call", "method", method, "result", fmt.Sprint(out[0]))
	return out, nil
}

func (r *CurveReader) doCall(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithCause(err),
			apperror.WithContext("encode "+method))
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, apperror.New(apperror.CodeRateLimitExceeded, apperror.WithCause(err))
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	raw, err := r.cb.Execute(func() ([]byte, error) {
		return r.client.CallContract(ctx, ethereum.CallMsg{To: &r.curve, Data: data}, nil)
	})
	if err != nil {
		if apperror.IsAppError(err) {
			return nil, err
		}
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(method))
	}

	out, err := r.abi.Unpack(method, raw)
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("decode "+method))
	}
	if len(out) == 0 {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext(method+": empty result"))
	}
	return out, nil
}
