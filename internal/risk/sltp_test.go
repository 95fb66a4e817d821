package risk

import (
	"testing"

	"github.com/forgefx/paperbot/internal/broker"
)

func TestSLTPRR_Long(t *testing.T) {
	sl, tp := SLTPRR(broker.SideLong, 1.1000, 0.0001, 20, 40)
	if sl != 1.1000-20*0.0001 {
		t.Errorf("unexpected SL: %v", sl)
	}
	if tp != 1.1000+40*0.0001 {
		t.Errorf("unexpected TP: %v", tp)
	}
}

func TestSLTPRR_Short(t *testing.T) {
	sl, tp := SLTPRR(broker.SideShort, 1.1000, 0.0001, 20, 40)
	if sl != 1.1000+20*0.0001 {
		t.Errorf("unexpected SL: %v", sl)
	}
	if tp != 1.1000-40*0.0001 {
		t.Errorf("unexpected TP: %v", tp)
	}
}

func TestSLTPATR_Long(t *testing.T) {
	sl, tp := SLTPATR(broker.SideLong, 100, 2, 1.5, 3.0)
	if sl != 100-1.5*2 {
		t.Errorf("unexpected SL: %v", sl)
	}
	if tp != 100+3.0*2 {
		t.Errorf("unexpected TP: %v", tp)
	}
}

func TestSLTPATR_Short(t *testing.T) {
	sl, tp := SLTPATR(broker.SideShort, 100, 2, 1.5, 3.0)
	if sl != 100+1.5*2 {
		t.Errorf("unexpected SL: %v", sl)
	}
	if tp != 100-3.0*2 {
		t.Errorf("unexpected TP: %v", tp)
	}
}
