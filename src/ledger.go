package main

import (
	"github.com/jinzhu/gorm"
)

// TrialLedger mirrors trial usage per platform token. It does no gating.
type TrialLedger struct {
	db *gorm.DB
}

func newTrialLedger(orm *Orm) *TrialLedger {
	return &TrialLedger{db: orm.DB}
}

// RecordUsage upserts the record for token with blocked = newCount >= limit
func (l *TrialLedger) RecordUsage(token string, newCount, limit int) (*TrialRecord, error) {
	rec := TrialRecord{Token: token}

	err := l.db.Where(TrialRecord{Token: token}).
		Assign(map[string]interface{}{
			"messages_used": newCount,
			"blocked":       newCount >= limit,
		}).
		FirstOrCreate(&rec).Error

	return &rec, storageError(err, "record trial usage")
}

// MarkAuthorized flags the token as having been authorized once. Usage and
// blocked stay as recorded.
func (l *TrialLedger) MarkAuthorized(token string) error {
	rec := TrialRecord{Token: token}

	err := l.db.Where(TrialRecord{Token: token}).
		Assign(map[string]interface{}{"was_authorized": true}).
		FirstOrCreate(&rec).Error

	return storageError(err, "mark trial authorized")
}

// Lookup returns the record for token or nil
func (l *TrialLedger) Lookup(token string) (*TrialRecord, error) {
	var rec TrialRecord

	err := l.db.First(&rec, "token = ?", token).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, nil
	}

	if err != nil {
		return nil, storageError(err, "lookup trial record")
	}

	return &rec, nil
}
