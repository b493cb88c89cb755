package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"bitbucket.org/mmdatafocus/loans_backend/models"
	"bitbucket.org/mmdatafocus/loans_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RunOverdueSweep walks every active credit of a business and flips unpaid
// past-due installments to overdue, cascading to the credit status. It is
// idempotent and intended to run on a schedule; a redis lock keeps multiple
// instances from sweeping the same business at once.
func (e *Engine) RunOverdueSweep(ctx context.Context, businessId string) (int, error) {
	ctx, span := e.startSpan(ctx, "RunOverdueSweep")
	defer span.End()

	lock, err := utils.ObtainBusinessLock(ctx, businessId, "overdue_sweep", "overdueSweep.go", "RunOverdueSweep")
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			config.LogError(e.logger, "overdueSweep.go", "RunOverdueSweep", "Release lock", businessId, err)
		}
	}()

	now := time.Now().UTC()
	flipped := 0
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var credits []models.Credit
		err := tx.Where("business_id = ? AND status IN ?", businessId,
			[]models.CreditStatus{models.CreditStatusActive, models.CreditStatusOverdue}).
			Preload("Installments").
			Find(&credits).Error
		if err != nil {
			return err
		}

		for i := range credits {
			credit := &credits[i]
			changed := false
			for j := range credit.Installments {
				inst := &credit.Installments[j]
				derived := models.DeriveInstallmentStatus(inst.PaidAmount, inst.ScheduledAmount, inst.DueDate, now)
				if derived == inst.Status {
					continue
				}
				err := tx.Model(&models.Installment{}).Where("id = ?", inst.ID).
					Update("status", derived).Error
				if err != nil {
					return err
				}
				inst.Status = derived
				changed = true
				flipped++
			}
			if !changed {
				continue
			}
			newStatus := models.DeriveCreditStatus(credit.Status, credit.RemainingBalance, credit.Installments)
			if newStatus != credit.Status {
				err := tx.Model(&models.Credit{}).Where("id = ?", credit.ID).
					Update("status", newStatus).Error
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.logger.WithFields(logrus.Fields{
		"field":       "OverdueSweep",
		"business_id": businessId,
		"flipped":     flipped,
	}).Info("overdue sweep completed")
	return flipped, nil
}

// SweepAllBusinesses runs the overdue sweep for every active business.
func (e *Engine) SweepAllBusinesses(ctx context.Context) {
	var businessIds []string
	err := e.db.WithContext(ctx).Model(&models.Business{}).
		Where("is_active = ?", true).
		Pluck("id", &businessIds).Error
	if err != nil {
		config.LogError(e.logger, "overdueSweep.go", "SweepAllBusinesses", "Pluck business ids", nil, err)
		return
	}
	for _, id := range businessIds {
		if _, err := e.RunOverdueSweep(ctx, id); err != nil {
			config.LogError(e.logger, "overdueSweep.go", "SweepAllBusinesses", "RunOverdueSweep", id, err)
		}
	}
}
