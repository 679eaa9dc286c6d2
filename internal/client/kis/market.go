package kis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"autostock/internal/broker"
	"autostock/internal/errs"
)

// Quote reads current price and previous close from one inquire-price call.
func (c *Client) Quote(ctx context.Context, symbol string) (broker.Quote, error) {
	q := url.Values{}
	q.Set("FID_COND_MRKT_DIV_CODE", "J")
	q.Set("FID_INPUT_ISCD", symbol)
	resp, err := c.do(ctx, callOpts{
		method: http.MethodGet,
		path:   "/uapi/domestic-stock/v1/quotations/inquire-price",
		trID:   "FHKST01010100",
		query:  q,
	})
	if err != nil {
		if isAuth(err) {
			return broker.Quote{}, err
		}
		return broker.Quote{}, fmt.Errorf("%s: %v: %w", symbol, err, errs.ErrDataUnavailable)
	}
	var pr priceResponse
	if err := json.Unmarshal(resp.body, &pr); err != nil {
		return broker.Quote{}, fmt.Errorf("%s: decode price: %v: %w", symbol, err, errs.ErrDataUnavailable)
	}
	if !pr.Output.Current.IsPositive() {
		return broker.Quote{}, fmt.Errorf("%s: no price: %w", symbol, errs.ErrDataUnavailable)
	}
	return broker.Quote{
		Symbol:        symbol,
		Price:         pr.Output.Current.Decimal,
		PreviousClose: pr.Output.PreviousClose.Decimal,
		At:            c.Now(),
	}, nil
}
