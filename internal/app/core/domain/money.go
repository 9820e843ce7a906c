package domain

import "github.com/shopspring/decimal"

// MinorUnitExponent 最小貨幣單位的小數位數 (EUR cents = 2)
const MinorUnitExponent = 2

// FormatMinor 將最小貨幣單位轉成主要單位字串，只用於顯示與 log，不參與運算
//
//	FormatMinor(1050) == "10.50"
func FormatMinor(amount int64) string {
	return decimal.New(amount, -MinorUnitExponent).StringFixed(MinorUnitExponent)
}
