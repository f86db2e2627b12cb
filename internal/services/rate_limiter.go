package services

import (
	"fmt"
	"time"

	"jns23lab_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	FeatureAnalyze = "analyze"
	FeatureChat    = "chat"

	AnalyzeLimitFree    = 3
	AnalyzeLimitPremium = 20
	ChatLimitPremium    = 50

	// A pending reservation older than this belongs to a worker that died
	// mid-call; it is dropped so the slot is not lost for the day.
	staleReservationAge = 5 * time.Minute
)

// QuotaDecision is the outcome of a reservation attempt. ResetsAt is the next
// UTC midnight, when the daily window rolls over. ReservationID identifies the
// provisional usage row an allowed decision holds; it must be either committed
// or released.
type QuotaDecision struct {
	Allowed       bool
	Limit         int
	Used          int
	ResetsAt      time.Time
	ReservationID uint
}

// DeniedMessage is the user-facing text for a rejected request.
func (d QuotaDecision) DeniedMessage(feature string) string {
	return fmt.Sprintf("Daily limit reached (%d %s requests per day). Try again tomorrow.", d.Limit, feature)
}

// RateLimiter enforces per-user daily quotas derived from the usage log.
// Reserve* atomically counts today's rows and, when under the ceiling, inserts
// a provisional row that subsequent reservations count against. Commit
// fulfills the row once the model call succeeds; Release deletes it so a
// failed call costs nothing.
type RateLimiter interface {
	ReserveAnalyze(userID uuid.UUID, isPremium bool) (QuotaDecision, error)
	ReserveChat(userID uuid.UUID) (QuotaDecision, error)
	Commit(reservationID uint, inputTokens, outputTokens *int32) error
	Release(reservationID uint) error
	CountChatToday(userID uuid.UUID) (int, error)
}

type DefaultRateLimiter struct {
	db *gorm.DB
}

func NewRateLimiter(db *gorm.DB) RateLimiter {
	return &DefaultRateLimiter{db: db}
}

func (s *DefaultRateLimiter) ReserveAnalyze(userID uuid.UUID, isPremium bool) (QuotaDecision, error) {
	limit := AnalyzeLimitFree
	if isPremium {
		limit = AnalyzeLimitPremium
	}
	return s.reserve(userID, FeatureAnalyze, limit)
}

func (s *DefaultRateLimiter) ReserveChat(userID uuid.UUID) (QuotaDecision, error) {
	return s.reserve(userID, FeatureChat, ChatLimitPremium)
}

func (s *DefaultRateLimiter) CountChatToday(userID uuid.UUID) (int, error) {
	var count int64
	err := s.db.Model(&models.AiUsageLog{}).
		Where("user_id = ? AND feature = ? AND created_at >= ?", userID, FeatureChat, startOfTodayUTC()).
		Count(&count).Error
	return int(count), err
}

// reserve counts today's usage rows for (user, feature) against the ceiling
// and, when a slot is free, takes it by inserting a pending row inside the
// same transaction. The transaction holds a Postgres advisory lock scoped to
// (user, feature), so two concurrent requests on the last slot serialize: the
// second one counts the first one's reservation and is denied. Other dialects
// (sqlite in tests) rely on their own write serialization.
func (s *DefaultRateLimiter) reserve(userID uuid.UUID, feature string, limit int) (QuotaDecision, error) {
	decision := QuotaDecision{Limit: limit, ResetsAt: nextUTCMidnight()}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", userID.String()+":"+feature).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("user_id = ? AND feature = ? AND pending = ? AND created_at < ?",
			userID, feature, true, time.Now().UTC().Add(-staleReservationAge)).
			Delete(&models.AiUsageLog{}).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.AiUsageLog{}).
			Where("user_id = ? AND feature = ? AND created_at >= ?", userID, feature, startOfTodayUTC()).
			Count(&count).Error; err != nil {
			return err
		}

		decision.Used = int(count)
		if int(count) >= limit {
			return nil
		}

		reservation := &models.AiUsageLog{
			UserID:  userID,
			Feature: feature,
			Pending: true,
		}
		if err := tx.Create(reservation).Error; err != nil {
			return err
		}
		decision.Allowed = true
		decision.ReservationID = reservation.ID
		return nil
	})
	if err != nil {
		return QuotaDecision{}, err
	}
	return decision, nil
}

// Commit fulfills a reservation after a successful model call, recording
// token counts when the model reported them.
func (s *DefaultRateLimiter) Commit(reservationID uint, inputTokens, outputTokens *int32) error {
	return s.db.Model(&models.AiUsageLog{}).
		Where("id = ?", reservationID).
		Updates(map[string]interface{}{
			"pending":       false,
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		}).Error
}

// Release frees an unfulfilled reservation so the slot is usable again.
// Committed rows are never touched.
func (s *DefaultRateLimiter) Release(reservationID uint) error {
	return s.db.Where("id = ? AND pending = ?", reservationID, true).
		Delete(&models.AiUsageLog{}).Error
}

func startOfTodayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func nextUTCMidnight() time.Time {
	return startOfTodayUTC().Add(24 * time.Hour)
}
