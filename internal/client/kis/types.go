package kis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Number accepts the API's numeric strings ("71200", "") and bare numbers.
type Number struct {
	decimal.Decimal
}

func (n *Number) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		n.Decimal = decimal.Zero
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			n.Decimal = decimal.Zero
			return nil
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		n.Decimal = v
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		n.Decimal = decimal.NewFromFloat(f)
		return nil
	}
	return fmt.Errorf("invalid number: %s", string(b))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiredAt   string `json:"access_token_token_expired"`
}

type priceResponse struct {
	Output struct {
		Current       Number `json:"stck_prpr"`
		PreviousClose Number `json:"stck_sdpr"`
	} `json:"output"`
}

type holding struct {
	Symbol   string `json:"pdno"`
	Name     string `json:"prdt_name"`
	Quantity Number `json:"hldg_qty"`
	Sellable Number `json:"ord_psbl_qty"`
	AvgPrice Number `json:"pchs_avg_pric"`
	Current  Number `json:"prpr"`
}

type balanceSummary struct {
	Cash Number `json:"dnca_tot_amt"`
}

type balanceResponse struct {
	Output1 []holding        `json:"output1"`
	Output2 []balanceSummary `json:"output2"`
	FK100   string           `json:"ctx_area_fk100"`
	NK100   string           `json:"ctx_area_nk100"`
}

type orderResponse struct {
	Output struct {
		OrgNo   string `json:"KRX_FWDG_ORD_ORGNO"`
		OrderNo string `json:"ODNO"`
	} `json:"output"`
}

type execution struct {
	OrderNo   string `json:"odno"`
	Quantity  Number `json:"ord_qty"`
	Filled    Number `json:"tot_ccld_qty"`
	Remaining Number `json:"rmn_qty"`
	Cancelled string `json:"cncl_yn"`
}

type executionResponse struct {
	Output1 []execution `json:"output1"`
}
