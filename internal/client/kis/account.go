package kis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"autostock/internal/broker"
	"autostock/internal/errs"
	"autostock/internal/models"
)

const maxBalancePages = 20

func (c *Client) account() url.Values {
	q := url.Values{}
	q.Set("CANO", c.cano)
	q.Set("ACNT_PRDT_CD", c.prdt)
	return q
}

// Balance walks inquire-balance continuation pages. Cash comes from the
// first page summary.
func (c *Client) Balance(ctx context.Context) (models.Balance, error) {
	var (
		bal    models.Balance
		fk, nk string
		trCont string
	)
	for page := 0; page < maxBalancePages; page++ {
		q := c.account()
		q.Set("AFHR_FLPR_YN", "N")
		q.Set("OFL_YN", "")
		q.Set("INQR_DVSN", "02")
		q.Set("UNPR_DVSN", "01")
		q.Set("FUND_STTL_ICLD_YN", "N")
		q.Set("FNCG_AMT_AUTO_RDPT_YN", "N")
		q.Set("PRCS_DVSN", "00")
		q.Set("CTX_AREA_FK100", fk)
		q.Set("CTX_AREA_NK100", nk)

		resp, err := c.do(ctx, callOpts{
			method: http.MethodGet,
			path:   "/uapi/domestic-stock/v1/trading/inquire-balance",
			trID:   c.trID("TTTC8434R"),
			trCont: trCont,
			query:  q,
		})
		if err != nil {
			return models.Balance{}, fmt.Errorf("inquire balance: %w", err)
		}
		var br balanceResponse
		if err := json.Unmarshal(resp.body, &br); err != nil {
			return models.Balance{}, fmt.Errorf("decode balance: %w", err)
		}
		if page == 0 && len(br.Output2) > 0 {
			bal.Cash = br.Output2[0].Cash.Decimal
		}
		for _, h := range br.Output1 {
			qty := h.Quantity.IntPart()
			if qty <= 0 {
				continue
			}
			bal.Positions = append(bal.Positions, models.Position{
				Symbol:       h.Symbol,
				Quantity:     qty,
				AvgPrice:     h.AvgPrice.Decimal,
				CurrentPrice: h.Current.Decimal,
				SellableQty:  h.Sellable.IntPart(),
			})
		}
		if resp.trCont != "F" && resp.trCont != "M" {
			break
		}
		fk, nk = strings.TrimSpace(br.FK100), strings.TrimSpace(br.NK100)
		trCont = "N"
	}
	return bal, nil
}

// PlaceOrder submits a limit cash order.
func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	tr := "TTTC0802U"
	if req.Side == models.SideSell {
		tr = "TTTC0801U"
	}
	resp, err := c.do(ctx, callOpts{
		method: http.MethodPost,
		path:   "/uapi/domestic-stock/v1/trading/order-cash",
		trID:   c.trID(tr),
		payload: map[string]string{
			"CANO":         c.cano,
			"ACNT_PRDT_CD": c.prdt,
			"PDNO":         req.Symbol,
			"ORD_DVSN":     "00",
			"ORD_QTY":      strconv.FormatInt(req.Quantity, 10),
			"ORD_UNPR":     req.Price.Truncate(0).String(),
		},
	})
	if err != nil {
		if isAuth(err) {
			return broker.OrderAck{}, err
		}
		return broker.OrderAck{}, fmt.Errorf("order-cash %s: %v: %w", req.Symbol, err, errs.ErrOrder)
	}
	var or orderResponse
	if err := json.Unmarshal(resp.body, &or); err != nil {
		return broker.OrderAck{}, fmt.Errorf("decode order: %v: %w", err, errs.ErrOrder)
	}
	if or.Output.OrderNo == "" {
		return broker.OrderAck{}, fmt.Errorf("order-cash %s: no ODNO: %w", req.Symbol, errs.ErrOrder)
	}
	c.rememberOrg(or.Output.OrderNo, or.Output.OrgNo)
	return broker.OrderAck{OrderID: or.Output.OrderNo}, nil
}

// OrderStatus looks the order up among today's executions.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (broker.OrderStatus, error) {
	today := c.Now().In(seoul).Format("20060102")
	q := c.account()
	q.Set("INQR_STRT_DT", today)
	q.Set("INQR_END_DT", today)
	q.Set("SLL_BUY_DVSN_CD", "00")
	q.Set("INQR_DVSN", "00")
	q.Set("PDNO", "")
	q.Set("CCLD_DVSN", "00")
	q.Set("ORD_GNO_BRNO", "")
	q.Set("ODNO", orderID)
	q.Set("INQR_DVSN_3", "00")
	q.Set("INQR_DVSN_1", "")
	q.Set("CTX_AREA_FK100", "")
	q.Set("CTX_AREA_NK100", "")

	resp, err := c.do(ctx, callOpts{
		method: http.MethodGet,
		path:   "/uapi/domestic-stock/v1/trading/inquire-daily-ccld",
		trID:   c.trID("TTTC8001R"),
		query:  q,
	})
	if err != nil {
		return broker.OrderStatus{}, fmt.Errorf("inquire order %s: %v: %w", orderID, err, errs.ErrOrder)
	}
	var er executionResponse
	if err := json.Unmarshal(resp.body, &er); err != nil {
		return broker.OrderStatus{}, fmt.Errorf("decode executions: %v: %w", err, errs.ErrOrder)
	}
	for _, ex := range er.Output1 {
		if strings.TrimLeft(ex.OrderNo, "0") != strings.TrimLeft(orderID, "0") {
			continue
		}
		st := broker.OrderStatus{
			OrderID:   orderID,
			FilledQty: ex.Filled.IntPart(),
			Cancelled: ex.Cancelled == "Y",
		}
		if st.Cancelled || (ex.Quantity.IsPositive() && st.FilledQty >= ex.Quantity.IntPart()) {
			c.forgetOrg(orderID)
		}
		return st, nil
	}
	return broker.OrderStatus{}, fmt.Errorf("order %s: %w", orderID, broker.ErrOrderNotFound)
}

// CancelOrder cancels the whole remaining quantity.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.do(ctx, callOpts{
		method: http.MethodPost,
		path:   "/uapi/domestic-stock/v1/trading/order-rvsecncl",
		trID:   c.trID("TTTC0803U"),
		payload: map[string]string{
			"CANO":               c.cano,
			"ACNT_PRDT_CD":       c.prdt,
			"KRX_FWDG_ORD_ORGNO": c.orgOf(orderID),
			"ORGN_ODNO":          orderID,
			"ORD_DVSN":           "00",
			"RVSE_CNCL_DVSN_CD":  "02",
			"ORD_QTY":            "0",
			"ORD_UNPR":           "0",
			"QTY_ALL_ORD_YN":     "Y",
		},
	})
	if err != nil {
		return fmt.Errorf("cancel %s: %v: %w", orderID, err, errs.ErrOrder)
	}
	c.forgetOrg(orderID)
	return nil
}
