// Package admin - service.go содержит логику аутентификации, управления сессиями,
// state-машину для пошаговых админ-действий и сами действия.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/config"
	"serotonyl.ru/gifts-bot/internal/features/catalog"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
	"serotonyl.ru/gifts-bot/internal/features/members"
)

const (
	maxLoginAttempts = 3
	lockoutPeriod    = time.Hour
	sessionTTL       = 24 * time.Hour
	stateTTL         = 5 * time.Minute
)

// Catalog - управление кейсами. Реализуется catalog.Service.
type Catalog interface {
	ListCases(ctx context.Context, activeOnly bool) ([]*catalog.Case, error)
	SetActive(ctx context.Context, caseID string, active bool) error
	SyncCases(ctx context.Context) (*catalog.SyncReport, error)
}

// Ledger - начисление звёзд. Реализуется ledger.Service.
type Ledger interface {
	Credit(ctx context.Context, m ledger.Mutation) (*ledger.Balance, error)
}

// Members - поиск и бан участников. Реализуется members.Service.
type Members interface {
	GetByUsername(ctx context.Context, username string) (*members.Member, error)
	SetBanned(ctx context.Context, userID int64, banned bool) error
}

// Service управляет админ-панелью.
type Service struct {
	store   Store
	catalog Catalog
	ledger  Ledger
	members Members
	cfg     *config.Config

	states   map[int64]*AdminState // Состояния диалогов (in-memory)
	statesMu sync.RWMutex
	now      func() time.Time
}

// NewService создаёт сервис админ-панели.
func NewService(store Store, c Catalog, l Ledger, m Members, cfg *config.Config) *Service {
	return &Service{
		store:   store,
		catalog: c,
		ledger:  l,
		members: m,
		cfg:     cfg,
		states:  make(map[int64]*AdminState),
		now:     time.Now,
	}
}

// IsAdmin проверяет, входит ли пользователь в ADMIN_IDS.
func (s *Service) IsAdmin(userID int64) bool {
	return s.cfg.IsAdmin(userID)
}

// VerifyPassword проверяет пароль администратора с использованием Argon2id.
// Включает защиту от brute-force: 3 неудачные попытки = блокировка на 1 час.
func (s *Service) VerifyPassword(ctx context.Context, userID int64, password string) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}

	attempts, err := s.store.GetRecentAttempts(ctx, userID, lockoutPeriod)
	if err != nil {
		return err
	}
	if attempts >= maxLoginAttempts {
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.cfg.AdminPasswordHash)
	if err := s.store.LogAttempt(ctx, userID, match); err != nil {
		log.WithError(err).Warn("Не удалось записать попытку входа")
	}
	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль админки")
		return common.ErrWrongPassword
	}

	session := &AdminSession{
		UserID:       userID,
		SessionToken: generateSecureToken(),
		ExpiresAt:    s.now().Add(sessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Вход в админ-панель")
	return nil
}

// HasActiveSession проверяет, есть ли у пользователя активная сессия.
func (s *Service) HasActiveSession(ctx context.Context, userID int64) bool {
	session, err := s.store.GetActiveSession(ctx, userID)
	return err == nil && session != nil
}

// Touch продлевает активность сессии.
func (s *Service) Touch(ctx context.Context, userID int64) {
	if err := s.store.UpdateActivity(ctx, userID); err != nil {
		log.WithError(err).Debug("Не удалось обновить активность сессии")
	}
}

// CleanupSessions удаляет истёкшие сессии. Вызывается по расписанию.
func (s *Service) CleanupSessions(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx)
}

// GetState возвращает текущее состояние диалога.
func (s *Service) GetState(userID int64) *AdminState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok || s.now().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога с 5-минутным таймаутом.
func (s *Service) SetState(userID int64, stateName string, data any) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	s.states[userID] = &AdminState{
		State:     stateName,
		Data:      data,
		ExpiresAt: s.now().Add(stateTTL),
	}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}

// Stats возвращает сводку по системе.
func (s *Service) Stats(ctx context.Context) (*SystemStats, error) {
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.store.SystemStats(ctx, dayStart)
}

// ListCases возвращает все кейсы, включая выключенные.
func (s *Service) ListCases(ctx context.Context) ([]*catalog.Case, error) {
	return s.catalog.ListCases(ctx, false)
}

// ToggleCase переключает продажу кейса и возвращает новое состояние.
func (s *Service) ToggleCase(ctx context.Context, c *catalog.Case) (bool, error) {
	active := !c.Active
	if err := s.catalog.SetActive(ctx, c.ID, active); err != nil {
		return false, err
	}
	return active, nil
}

// GiveStars начисляет звёзды пользователю от имени админа.
func (s *Service) GiveStars(ctx context.Context, adminID, userID, amount int64) (*ledger.Balance, error) {
	if amount <= 0 {
		return nil, common.ErrInvalidAmount
	}
	b, err := s.ledger.Credit(ctx, ledger.Mutation{
		UserID:      userID,
		Currency:    ledger.CurrencyStars,
		Amount:      decimal.NewFromInt(amount),
		Type:        ledger.TxAdminGive,
		Reference:   fmt.Sprintf("admin:%d", adminID),
		Description: "Выдано администратором",
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"amount":   amount,
	}).Warn("Админ выдал звёзды")
	return b, nil
}

// FindMember ищет участника по @username.
func (s *Service) FindMember(ctx context.Context, username string) (*members.Member, error) {
	return s.members.GetByUsername(ctx, username)
}

// ToggleBan банит или разбанивает участника и возвращает новое состояние.
func (s *Service) ToggleBan(ctx context.Context, m *members.Member) (bool, error) {
	banned := !m.IsBanned
	if err := s.members.SetBanned(ctx, m.UserID, banned); err != nil {
		return false, err
	}
	return banned, nil
}

// SyncCatalog запускает синхронизацию каталога вручную.
func (s *Service) SyncCatalog(ctx context.Context) (*catalog.SyncReport, error) {
	return s.catalog.SyncCases(ctx)
}

// --- Криптографические утилиты ---

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравниваем в постоянном времени
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// HashPassword строит хеш Argon2id в формате, который понимает verifyArgon2id.
func HashPassword(password string, salt []byte) string {
	const (
		memory      = 64 * 1024
		iterations  = 3
		parallelism = 2
		keyLen      = 32
	)
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

// generateSecureToken генерирует криптографически безопасный токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
