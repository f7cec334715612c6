package core

import (
	"math"
	"strings"
	"time"
)

// Board represents the listing board a stock trades on
type Board string

const (
	BoardMain    Board = "main"
	BoardSTAR    Board = "star"    // Shanghai STAR market, sh68xxxx
	BoardChiNext Board = "chinext" // Shenzhen ChiNext, sz30xxxx
	BoardBJ      Board = "bj"      // Beijing Stock Exchange
)

// BoardOf derives the listing board from a prefixed stock code such as sh600000.
func BoardOf(code string) Board {
	code = strings.ToLower(code)
	switch {
	case strings.HasPrefix(code, "bj"):
		return BoardBJ
	case strings.HasPrefix(code, "sh68"):
		return BoardSTAR
	case strings.HasPrefix(code, "sz30"):
		return BoardChiNext
	default:
		return BoardMain
	}
}

// IsSTName reports whether a stock name carries the special-treatment marker.
func IsSTName(name string) bool {
	return strings.Contains(name, "ST")
}

// IsDelistingName reports whether a stock name carries the delisting marker.
func IsDelistingName(name string) bool {
	return strings.Contains(name, "退")
}

// RawBar is one row of a stock's daily CSV, for a day the stock actually traded.
// Numeric fields are NaN when the source cell was empty.
type RawBar struct {
	Date      time.Time
	Code      string
	Name      string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	PrevClose float64
	Volume    float64
	Turnover  float64
	MarketCap float64
	Industry  string
}

// Identity is the stock identity a limit band depends on
type Identity struct {
	Code  string
	Board Board
	ST    bool
	BJ    bool
}

// IdentityOf derives the identity of a bar from its own code and name.
func IdentityOf(b RawBar) Identity {
	board := BoardOf(b.Code)
	return Identity{
		Code:  b.Code,
		Board: board,
		ST:    IsSTName(b.Name),
		BJ:    board == BoardBJ,
	}
}

// AdjustedPrices holds back-adjusted prices and the cumulative adjustment factor
type AdjustedPrices struct {
	Factor float64
	Open   float64
	High   float64
	Low    float64
	Close  float64
}

// LimitBand holds the regulatory price limits of a day and the flags derived from them
type LimitBand struct {
	UpLimit     float64
	DownLimit   float64
	OneWordUp   bool // low >= up limit
	OneWordDown bool // high <= down limit
	OpenUp      bool // open >= up limit
	OpenDown    bool // open <= down limit
}

// DailyBar is a raw bar enriched with adjusted prices and limit annotations
type DailyBar struct {
	RawBar
	Adjusted    AdjustedPrices
	Band        LimitBand
	IsST        bool
	IsDelisting bool
}

// NullBool is a boolean that may be absent, such as a look-ahead flag on the
// last row of a series.
type NullBool struct {
	Bool  bool
	Valid bool
}

// Some returns a present NullBool.
func Some(b bool) NullBool {
	return NullBool{Bool: b, Valid: true}
}

// Float renders the value the way tabular consumers expect: 1, 0 or NaN.
func (n NullBool) Float() float64 {
	if !n.Valid {
		return math.NaN()
	}
	if n.Bool {
		return 1
	}
	return 0
}

// Lookahead holds the next trading day's flags as seen from the current row
type Lookahead struct {
	Tradable    NullBool
	ST          NullBool
	Delisting   NullBool
	OpenLimitUp NullBool
	OneWordUp   NullBool
}

// AlignedBar is one row per reference calendar day. Trading is false for
// rows synthesized to fill a suspension gap.
type AlignedBar struct {
	DailyBar
	Trading bool
	Next    Lookahead
}
