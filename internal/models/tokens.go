package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// TokenBalance is the per-user credit ledger. Free credits are consumed
// before paid ones. Paid may go negative when a debit exceeds both
// pools; clamping it is a product decision this layer does not make.
type TokenBalance struct {
	UserID    uint  `gorm:"primaryKey" json:"user_id"`
	Free      int64 `json:"free"`
	Paid      int64 `json:"paid"`
	UpdatedAt time.Time
}

// Total is the spendable balance.
func (b *TokenBalance) Total() int64 { return b.Free + b.Paid }

var ErrBalanceContention = errors.New("token balance contention")

const debitRetries = 5

// DebitTokens subtracts cost from the user's balance, free pool first.
// The write is an optimistic compare-and-swap on both fields, retried a
// few times, so concurrent jobs debiting the same user cannot lose
// updates.
func DebitTokens(db *gorm.DB, userID uint, cost int64) error {
	for i := 0; i < debitRetries; i++ {
		var b TokenBalance
		if err := db.First(&b, "user_id = ?", userID).Error; err != nil {
			return err
		}

		useFromFree := cost
		if b.Free < cost {
			useFromFree = b.Free
		}
		remaining := cost - useFromFree

		res := db.Model(&TokenBalance{}).
			Where("user_id = ? AND free = ? AND paid = ?", userID, b.Free, b.Paid).
			Updates(map[string]interface{}{
				"free": b.Free - useFromFree,
				"paid": b.Paid - remaining,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return nil
		}
	}
	return ErrBalanceContention
}
