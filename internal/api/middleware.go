package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/common"
)

const (
	headerInitData      = "X-Telegram-Init-Data"
	headerWebhookSecret = "X-Webhook-Secret"

	ctxUserID = "tg_user_id"
)

// requestLogger пишет каждый запрос в logrus.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"component": "api",
			"method":    c.Request.Method,
			"path":      c.FullPath(),
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("HTTP запрос")
			return
		}
		entry.Debug("HTTP запрос")
	}
}

// recovery перехватывает панику в обработчике и отвечает INTERNAL_ERROR.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, r any) {
		log.WithFields(log.Fields{
			"component": "panic_recovery",
			"panic":     fmt.Sprintf("%v", r),
			"path":      c.Request.URL.Path,
		}).Error("ПАНИКА в HTTP обработчике — восстановлено")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
			Code:    common.CodeInternalError,
			Message: common.PublicMessage(fmt.Errorf("panic")),
		})
	})
}

// initDataAuth проверяет initData из заголовка и кладёт id пользователя в контекст.
// Если проверка выключена конфигом, пропускает запрос как есть.
func (s *Server) initDataAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.verifyInitData {
			c.Next()
			return
		}
		data, err := VerifyInitData(c.GetHeader(headerInitData), s.botToken, s.initDataMaxAge, s.now())
		if err != nil {
			log.WithError(err).WithField("path", c.Request.URL.Path).Debug("initData отклонена")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
				Code:    common.CodeInvalidRequest,
				Message: err.Error(),
			})
			return
		}
		c.Set(ctxUserID, data.UserID)
		c.Next()
	}
}

// webhookAuth сверяет общий секрет TON-шлюза за постоянное время.
func (s *Server) webhookAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.webhookSecret == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, errorBody{
				Code:    common.CodeInvalidRequest,
				Message: "вебхук отключён",
			})
			return
		}
		got := c.GetHeader(headerWebhookSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.webhookSecret)) != 1 {
			log.WithField("client_ip", c.ClientIP()).Warn("Вебхук TON с неверным секретом")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
				Code:    common.CodeInvalidRequest,
				Message: "неверный секрет",
			})
			return
		}
		c.Next()
	}
}
