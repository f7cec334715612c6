package core

import (
	"math"
	"testing"
)

func TestBoardOf(t *testing.T) {
	tests := []struct {
		code string
		want Board
	}{
		{"sh600000", BoardMain},
		{"sz000001", BoardMain},
		{"sh688001", BoardSTAR},
		{"sz300750", BoardChiNext},
		{"bj430047", BoardBJ},
		{"SH688981", BoardSTAR},
	}

	for _, tt := range tests {
		if got := BoardOf(tt.code); got != tt.want {
			t.Errorf("BoardOf(%q) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestNameMarkers(t *testing.T) {
	if !IsSTName("*ST康美") {
		t.Error("expected *ST name to be ST")
	}
	if IsSTName("平安银行") {
		t.Error("expected plain name not to be ST")
	}
	if !IsDelistingName("退市海润") {
		t.Error("expected delisting marker")
	}
}

func TestIdentityOf(t *testing.T) {
	id := IdentityOf(RawBar{Code: "bj830799", Name: "ST艾融"})
	if !id.BJ || !id.ST || id.Board != BoardBJ {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestNullBool_Float(t *testing.T) {
	if Some(true).Float() != 1 {
		t.Error("expected 1 for true")
	}
	if Some(false).Float() != 0 {
		t.Error("expected 0 for false")
	}
	if !math.IsNaN(NullBool{}.Float()) {
		t.Error("expected NaN for absent value")
	}
}
