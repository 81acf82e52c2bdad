package app

import (
	"sync/atomic"

	"github.com/fd1az/bzz-exchange/business/exchange/domain"
)

// FeeSchedule holds the current fee in basis points. Requests read it once
// at admission.
type FeeSchedule struct {
	bps atomic.Uint64
}

// NewFeeSchedule validates bps against the ceiling.
func NewFeeSchedule(bps uint64) (*FeeSchedule, error) {
	if err := domain.ValidateFee(bps); err != nil {
		return nil, err
	}
	f := &FeeSchedule{}
	f.bps.Store(bps)
	return f, nil
}

func (f *FeeSchedule) Load() uint64 {
	return f.bps.Load()
}

// Store replaces the fee, returning the previous value.
func (f *FeeSchedule) Store(bps uint64) (uint64, error) {
	if err := domain.ValidateFee(bps); err != nil {
		return 0, err
	}
	return f.bps.Swap(bps), nil
}
