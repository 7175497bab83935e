// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nutrinexas/adserve/pkg/ids"
)

var (
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// EntryType is the direction of a ledger entry
type EntryType string

const (
	EntryDebit  EntryType = "debit"
	EntryCredit EntryType = "credit"
)

// Entry is an append-only wallet ledger record
type Entry struct {
	ID           string
	SellerID     ids.ID
	Type         EntryType
	Amount       decimal.Decimal
	Description  string
	BalanceAfter decimal.Decimal
	CreatedAt    time.Time
}

// Wallet is the seller balance accessor and mutator. Debit must check and
// update the balance atomically and write the ledger entry in the same
// operation or not at all.
type Wallet interface {
	Balance(ctx context.Context, sellerID ids.ID) (decimal.Decimal, error)
	Debit(ctx context.Context, sellerID ids.ID, amount decimal.Decimal, description string) (*Entry, error)
	Credit(ctx context.Context, sellerID ids.ID, amount decimal.Decimal, description string) (*Entry, error)
	Entries(ctx context.Context, sellerID ids.ID) ([]*Entry, error)
}

// MemoryWallet is an in-memory Wallet guarded by a mutex
type MemoryWallet struct {
	mu       sync.RWMutex
	balances map[ids.ID]decimal.Decimal
	entries  map[ids.ID][]*Entry
}

// NewMemoryWallet creates an empty in-memory wallet
func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{
		balances: make(map[ids.ID]decimal.Decimal),
		entries:  make(map[ids.ID][]*Entry),
	}
}

func (w *MemoryWallet) Balance(ctx context.Context, sellerID ids.ID) (decimal.Decimal, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balances[sellerID], nil
}

func (w *MemoryWallet) Debit(ctx context.Context, sellerID ids.ID, amount decimal.Decimal, description string) (*Entry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	balance := w.balances[sellerID]
	if balance.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}

	newBalance := balance.Sub(amount)
	w.balances[sellerID] = newBalance

	entry := &Entry{
		ID:           uuid.NewString(),
		SellerID:     sellerID,
		Type:         EntryDebit,
		Amount:       amount,
		Description:  description,
		BalanceAfter: newBalance,
		CreatedAt:    time.Now(),
	}
	w.entries[sellerID] = append(w.entries[sellerID], entry)

	return entry, nil
}

func (w *MemoryWallet) Credit(ctx context.Context, sellerID ids.ID, amount decimal.Decimal, description string) (*Entry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	newBalance := w.balances[sellerID].Add(amount)
	w.balances[sellerID] = newBalance

	entry := &Entry{
		ID:           uuid.NewString(),
		SellerID:     sellerID,
		Type:         EntryCredit,
		Amount:       amount,
		Description:  description,
		BalanceAfter: newBalance,
		CreatedAt:    time.Now(),
	}
	w.entries[sellerID] = append(w.entries[sellerID], entry)

	return entry, nil
}

// Entries returns the seller's ledger, newest first
func (w *MemoryWallet) Entries(ctx context.Context, sellerID ids.ID) ([]*Entry, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	src := w.entries[sellerID]
	out := make([]*Entry, len(src))
	for i, e := range src {
		cp := *e
		out[len(src)-1-i] = &cp
	}
	return out, nil
}
