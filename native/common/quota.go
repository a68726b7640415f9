package common

import (
	"errors"
	"math"
)

var (
	ErrMintCountExceeded = errors.New("mint quota: too many mints this epoch")
	ErrMintValueExceeded = errors.New("mint quota: value allowance spent for this epoch")
	ErrMintUsageOverflow = errors.New("mint quota: usage counter overflow")
)

// MintUsage is what one admin subject has minted in the current epoch.
type MintUsage struct {
	Epoch uint64
	Mints uint32
	Value uint64
}

// Quota bounds minting per admin subject and epoch. A zero cap is unlimited.
type Quota struct {
	MaxMints     uint32
	MaxValue     uint64
	EpochSeconds uint32
}

// Enabled reports whether any cap is set.
func (q Quota) Enabled() bool {
	return q.MaxMints > 0 || q.MaxValue > 0
}

// Epoch maps a unix timestamp onto the quota's epoch index.
func (q Quota) Epoch(now int64) uint64 {
	if q.EpochSeconds == 0 || now <= 0 {
		return 0
	}
	return uint64(now) / uint64(q.EpochSeconds)
}

// Charge books one mint of value at time now against prev. Usage from an
// earlier epoch is discarded first. On error prev is returned untouched.
func (q Quota) Charge(now int64, prev MintUsage, value uint64) (MintUsage, error) {
	next := prev
	if epoch := q.Epoch(now); prev.Epoch != epoch {
		next = MintUsage{Epoch: epoch}
	}
	if next.Mints == math.MaxUint32 || next.Value > math.MaxUint64-value {
		return prev, ErrMintUsageOverflow
	}
	next.Mints++
	next.Value += value

	switch {
	case q.MaxMints > 0 && next.Mints > q.MaxMints:
		return prev, ErrMintCountExceeded
	case q.MaxValue > 0 && next.Value > q.MaxValue:
		return prev, ErrMintValueExceeded
	}
	return next, nil
}
