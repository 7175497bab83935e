// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mysql

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nutrinexas/adserve/pkg/ids"
	"github.com/nutrinexas/adserve/pkg/wallet"
)

// WalletStore implements wallet.Wallet on MySQL. The balance is derived
// from the entry ledger; debits lock the seller's rows so the
// balance check and the append are one atomic step.
type WalletStore struct {
	db *gorm.DB
}

func NewWalletStore(db *gorm.DB) *WalletStore {
	return &WalletStore{db: db}
}

func (w *WalletStore) Balance(ctx context.Context, sellerID ids.ID) (decimal.Decimal, error) {
	return w.balance(w.db.WithContext(ctx), sellerID, false)
}

func (w *WalletStore) balance(tx *gorm.DB, sellerID ids.ID, forUpdate bool) (decimal.Decimal, error) {
	q := tx.Model(&WalletEntryModel{}).Where("seller_id = ?", sellerID.String())
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var model WalletEntryModel
	err := q.Order("created_at DESC, id DESC").First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return model.BalanceAfter, nil
}

func (w *WalletStore) Debit(ctx context.Context, sellerID ids.ID, amount decimal.Decimal, description string) (*wallet.Entry, error) {
	return w.append(ctx, sellerID, wallet.EntryDebit, amount, description)
}

func (w *WalletStore) Credit(ctx context.Context, sellerID ids.ID, amount decimal.Decimal, description string) (*wallet.Entry, error) {
	return w.append(ctx, sellerID, wallet.EntryCredit, amount, description)
}

func (w *WalletStore) append(ctx context.Context, sellerID ids.ID, kind wallet.EntryType, amount decimal.Decimal, description string) (*wallet.Entry, error) {
	if !amount.IsPositive() {
		return nil, wallet.ErrInvalidAmount
	}

	var entry *wallet.Entry
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := w.balance(tx, sellerID, true)
		if err != nil {
			return err
		}

		var after decimal.Decimal
		switch kind {
		case wallet.EntryDebit:
			if balance.LessThan(amount) {
				return wallet.ErrInsufficientFunds
			}
			after = balance.Sub(amount)
		default:
			after = balance.Add(amount)
		}

		e := &wallet.Entry{
			ID:           uuid.NewString(),
			SellerID:     sellerID,
			Type:         kind,
			Amount:       amount,
			Description:  description,
			BalanceAfter: after,
			CreatedAt:    time.Now(),
		}
		if err := tx.Create(toWalletEntryModel(e)).Error; err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (w *WalletStore) Entries(ctx context.Context, sellerID ids.ID) ([]*wallet.Entry, error) {
	var models []WalletEntryModel
	err := w.db.WithContext(ctx).
		Where("seller_id = ?", sellerID.String()).
		Order("created_at DESC, id DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]*wallet.Entry, 0, len(models))
	for i := range models {
		e, err := toWalletEntry(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
