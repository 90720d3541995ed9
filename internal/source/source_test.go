package source

import (
	"testing"

	"github.com/abhijiths101/flowsurface/internal/model"
)

func TestSeries_AppendAndRevise(t *testing.T) {
	s := NewSeries(TimeBased)

	if grew := s.Apply(model.Candle{Key: 100, Close: 1}); !grew {
		t.Fatal("first candle should append")
	}
	if grew := s.Apply(model.Candle{Key: 200, Close: 2}); !grew {
		t.Fatal("greater key should append")
	}
	// Revise the open candle in place.
	if grew := s.Apply(model.Candle{Key: 200, Close: 2.5}); grew {
		t.Fatal("equal key should revise, not append")
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
	last, _ := s.Last()
	if last.Close != 2.5 {
		t.Errorf("open candle close = %v, want 2.5", last.Close)
	}
}

func TestSeries_DropsStale(t *testing.T) {
	s := NewSeries(TimeBased)
	s.Apply(model.Candle{Key: 100, Close: 1})
	s.Apply(model.Candle{Key: 200, Close: 2})

	if grew := s.Apply(model.Candle{Key: 150, Close: 9}); grew {
		t.Fatal("stale key must be dropped")
	}
	if s.Len() != 2 {
		t.Fatalf("stale input changed the series, len=%d", s.Len())
	}
	if c := s.At(0); c.Close != 1 {
		t.Errorf("earlier candle changed: %+v", c)
	}
}

func TestSeries_TickBasedDenseKeys(t *testing.T) {
	s := NewSeries(TickBased)

	if grew := s.Apply(model.Candle{Key: 5}); grew {
		t.Fatal("tick series must start at position 0")
	}
	s.Apply(model.Candle{Key: 0, Close: 1})
	s.Apply(model.Candle{Key: 1, Close: 2})

	// Gap: position 3 without 2.
	if grew := s.Apply(model.Candle{Key: 3, Close: 4}); grew {
		t.Fatal("gapped position must be dropped")
	}
	if grew := s.Apply(model.Candle{Key: 2, Close: 3}); !grew {
		t.Fatal("next dense position should append")
	}
	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
}

func TestSeries_Clear(t *testing.T) {
	s := NewSeries(TimeBased)
	s.Apply(model.Candle{Key: 1})
	s.Apply(model.Candle{Key: 2})
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("len after Clear = %d", s.Len())
	}
	if _, ok := s.Last(); ok {
		t.Error("Last should miss after Clear")
	}
}
