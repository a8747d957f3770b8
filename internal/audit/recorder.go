// Package audit пишет журнал событий системы. Запись best-effort: одна
// попытка, сбой никогда не доходит до вызвавшей операции, но попадает в лог,
// метрику и локальный канал ошибок для мониторинга.
package audit

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"tendermarket/db"
	"tendermarket/internal/metrics"
)

// Закрытый набор тегов действий.
const (
	ActionUserRegistered      = "USER_REGISTERED"
	ActionUserLoginEDS        = "USER_LOGIN_EDS"
	ActionLoginAttemptBlocked = "LOGIN_ATTEMPT_BLOCKED"
	ActionLoginFailed         = "LOGIN_FAILED"
	ActionTenderCreated       = "TENDER_CREATED"
	ActionBidPlaced           = "BID_PLACED"
	ActionRoleChange          = "ROLE_CHANGE"
	ActionUserBlocked         = "USER_BLOCKED"
	ActionUserUnblocked       = "USER_UNBLOCKED"
)

// Store — то немногое, что рекордеру нужно от хранилища. Только запись:
// журнал не обновляется и не удаляется.
type Store interface {
	AppendAuditEntry(ctx context.Context, e *db.AuditLogEntry) error
}

type Recorder struct {
	store Store
	log   *zap.Logger
	errs  chan error
}

func NewRecorder(store Store, log *zap.Logger) *Recorder {
	return &Recorder{
		store: store,
		log:   log,
		errs:  make(chan error, 64),
	}
}

// Record дописывает событие в журнал. Ошибка записи не возвращается:
// основное действие не должно откатываться из-за сбоя аудита.
func (r *Recorder) Record(ctx context.Context, actorID, action string, targetID *string, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		r.report(action, err)
		return
	}
	entry := &db.AuditLogEntry{
		UserID:   actorID,
		Action:   action,
		TargetID: targetID,
		Details:  payload,
	}
	if err := r.store.AppendAuditEntry(ctx, entry); err != nil {
		r.report(action, err)
	}
}

// Errs отдаёт поток ошибок записи для операционного мониторинга.
func (r *Recorder) Errs() <-chan error {
	return r.errs
}

func (r *Recorder) report(action string, err error) {
	metrics.AuditWriteFailures.Inc()
	r.log.Error("audit write failed", zap.String("action", action), zap.Error(err))
	select {
	case r.errs <- err:
	default:
		// Канал переполнен: ошибка уже в логе и метрике, не блокируемся.
	}
}
