package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/features/catalog"
	"serotonyl.ru/gifts-bot/internal/features/inventory"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
	"serotonyl.ru/gifts-bot/internal/features/payments"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type balanceBody struct {
	TON   decimal.Decimal `json:"ton"`
	Stars int64           `json:"stars"`
}

type outcomeBody struct {
	OpeningID uuid.UUID      `json:"openingId"`
	EntryID   uuid.UUID      `json:"entryId"`
	ItemID    string         `json:"itemId"`
	Name      string         `json:"name"`
	Image     string         `json:"image,omitempty"`
	Rarity    catalog.Rarity `json:"rarity"`
	Value     int64          `json:"value"`
}

type openCaseRequest struct {
	UserID   int64  `json:"userId" binding:"required"`
	CaseID   string `json:"caseId" binding:"required"`
	Quantity *int   `json:"quantity"`
}

type openCaseResponse struct {
	RequestID  uuid.UUID       `json:"requestId"`
	CaseID     string          `json:"caseId"`
	Currency   ledger.Currency `json:"currency"`
	TotalCost  decimal.Decimal `json:"totalCost"`
	Outcomes   []outcomeBody   `json:"outcomes"`
	NewBalance *balanceBody    `json:"newBalance"`
}

type entryBody struct {
	ID         uuid.UUID      `json:"id"`
	ItemID     string         `json:"itemId"`
	CaseID     string         `json:"caseId"`
	Name       string         `json:"name"`
	Image      string         `json:"image,omitempty"`
	Rarity     catalog.Rarity `json:"rarity"`
	Value      int64          `json:"value"`
	IsGifted   bool           `json:"isGifted"`
	GiftedTo   *int64         `json:"giftedTo,omitempty"`
	ObtainedAt time.Time      `json:"obtainedAt"`
}

type giftRequest struct {
	UserID   int64 `json:"userId" binding:"required"`
	ToUserID int64 `json:"toUserId" binding:"required"`
}

type statsBody struct {
	Openings    int64           `json:"openings"`
	SpentStars  int64           `json:"spentStars"`
	SpentTON    decimal.Decimal `json:"spentTon"`
	ValueWon    int64           `json:"valueWon"`
	ReturnRatio float64         `json:"returnRatio"`
	BestDrop    *outcomeBody    `json:"bestDrop,omitempty"`
}

// statusFor переводит клиентский код в HTTP статус.
func statusFor(code string) int {
	switch code {
	case common.CodeInvalidRequest:
		return http.StatusBadRequest
	case common.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case common.CodeCaseNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError отвечает {code, message}. Детали внутренних ошибок только в лог.
func respondError(c *gin.Context, err error) {
	code := common.ErrorCode(err)
	if code == common.CodeInternalError {
		log.WithError(err).WithField("path", c.Request.URL.Path).Error("Ошибка обработки запроса")
	}
	c.JSON(statusFor(code), errorBody{Code: code, Message: common.PublicMessage(err)})
}

// authorize проверяет, что запрос идёт от userID и что он не забанен.
func (s *Server) authorize(c *gin.Context, userID int64) bool {
	if userID <= 0 {
		respondError(c, common.ErrInvalidRequest)
		return false
	}
	if s.verifyInitData && c.GetInt64(ctxUserID) != userID {
		c.JSON(http.StatusForbidden, errorBody{
			Code:    common.CodeInvalidRequest,
			Message: "запрос от имени другого пользователя",
		})
		return false
	}
	if s.deps.Bans != nil {
		banned, err := s.deps.Bans.IsBanned(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return false
		}
		if banned {
			c.JSON(http.StatusForbidden, errorBody{
				Code:    common.CodeInvalidRequest,
				Message: common.ErrUserBanned.Error(),
			})
			return false
		}
	}
	return true
}

func pathUserID(c *gin.Context) int64 {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func queryLimit(c *gin.Context) int {
	n, _ := strconv.Atoi(c.Query("limit"))
	return n
}

func toBalance(b *ledger.Balance) *balanceBody {
	if b == nil {
		return nil
	}
	return &balanceBody{TON: b.TON, Stars: b.Stars}
}

func toEntry(e *inventory.Entry) entryBody {
	return entryBody{
		ID:         e.ID,
		ItemID:     e.ItemID,
		CaseID:     e.CaseID,
		Name:       e.ItemName,
		Image:      e.ItemImage,
		Rarity:     e.ItemRarity,
		Value:      e.ItemValue,
		IsGifted:   e.IsGifted,
		GiftedTo:   e.GiftedTo,
		ObtainedAt: e.ObtainedAt,
	}
}

// GET /health
func (s *Server) health(c *gin.Context) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			log.WithError(err).Warn("БД недоступна")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /api/cases
func (s *Server) listCases(c *gin.Context) {
	cases, err := s.deps.Catalog.ListCases(c.Request.Context(), true)
	if err != nil {
		respondError(c, err)
		return
	}
	if cases == nil {
		cases = []*catalog.Case{}
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases})
}

// GET /api/cases/:id/items
func (s *Server) caseItems(c *gin.Context) {
	ctx := c.Request.Context()
	cs, err := s.deps.Catalog.GetCase(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	set := s.deps.Catalog.GetCaseItems(ctx, cs.ID)
	c.JSON(http.StatusOK, gin.H{
		"case":   cs,
		"items":  set.Items,
		"source": set.Source,
	})
}

// POST /api/open-case
func (s *Server) openCase(c *gin.Context) {
	var req openCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Code: common.CodeInvalidRequest, Message: err.Error()})
		return
	}
	// Без поля открываем один кейс; явный 0 проверяет сервис
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if !s.authorize(c, req.UserID) {
		return
	}

	res, err := s.deps.Opening.OpenCase(c.Request.Context(), req.UserID, req.CaseID, quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := openCaseResponse{
		RequestID:  res.RequestID,
		CaseID:     res.CaseID,
		Currency:   res.Currency,
		TotalCost:  res.TotalCost,
		Outcomes:   make([]outcomeBody, 0, len(res.Outcomes)),
		NewBalance: toBalance(res.Balance),
	}
	for _, o := range res.Outcomes {
		resp.Outcomes = append(resp.Outcomes, outcomeBody{
			OpeningID: o.OpeningID,
			EntryID:   o.EntryID,
			ItemID:    o.Item.ID,
			Name:      o.Item.Name,
			Image:     o.Item.ImageURL,
			Rarity:    o.Item.Rarity,
			Value:     o.Item.Value,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/users/:id/balance
func (s *Server) balance(c *gin.Context) {
	userID := pathUserID(c)
	if !s.authorize(c, userID) {
		return
	}
	b, err := s.deps.Ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBalance(b))
}

// GET /api/users/:id/inventory
func (s *Server) inventory(c *gin.Context) {
	userID := pathUserID(c)
	if !s.authorize(c, userID) {
		return
	}
	entries, err := s.deps.Inventory.List(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]entryBody, 0, len(entries))
	for _, e := range entries {
		items = append(items, toEntry(e))
	}
	count, value := inventory.Summary(entries)
	c.JSON(http.StatusOK, gin.H{"items": items, "count": count, "totalValue": value})
}

// GET /api/users/:id/stats
func (s *Server) stats(c *gin.Context) {
	userID := pathUserID(c)
	if !s.authorize(c, userID) {
		return
	}
	st, err := s.deps.Opening.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	body := statsBody{
		Openings:    st.Openings,
		SpentStars:  st.SpentStars,
		SpentTON:    st.SpentTON,
		ValueWon:    st.ValueWon,
		ReturnRatio: st.ReturnRatio(),
	}
	if st.BestDrop != nil {
		body.BestDrop = &outcomeBody{
			OpeningID: st.BestDrop.ID,
			ItemID:    st.BestDrop.ItemID,
			Name:      st.BestDrop.ItemName,
			Rarity:    st.BestDrop.ItemRarity,
			Value:     st.BestDrop.ItemValue,
		}
	}
	c.JSON(http.StatusOK, body)
}

// POST /api/inventory/:entryId/gift
func (s *Server) gift(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("entryId"))
	if err != nil {
		respondError(c, common.ErrInvalidRequest)
		return
	}
	var req giftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Code: common.CodeInvalidRequest, Message: err.Error()})
		return
	}
	if !s.authorize(c, req.UserID) {
		return
	}

	e, err := s.deps.Inventory.Gift(c.Request.Context(), entryID, req.UserID, req.ToUserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEntry(e))
}

// GET /api/leaderboard
func (s *Server) leaderboard(c *gin.Context) {
	rows, err := s.deps.Inventory.Leaderboard(c.Request.Context(), queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i, r := range rows {
		out = append(out, gin.H{
			"rank":       i + 1,
			"userId":     r.UserID,
			"name":       r.DisplayName(),
			"items":      r.Items,
			"totalValue": r.TotalValue,
		})
	}
	c.JSON(http.StatusOK, gin.H{"leaders": out})
}

// POST /api/webhook/ton
func (s *Server) tonDeposit(c *gin.Context) {
	var d payments.TONDeposit
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Code: common.CodeInvalidRequest, Message: err.Error()})
		return
	}

	b, err := s.deps.Payments.DepositTON(c.Request.Context(), d)
	if errors.Is(err, common.ErrDuplicatePayment) {
		// Шлюз повторяет уведомления, пока не получит 2xx
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "credited", "balance": toBalance(b)})
}
