package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateCursor_Supersedes(t *testing.T) {
	d := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	t0 := time.Date(2026, 10, 3, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	tests := []struct {
		name string
		a, b DateCursor
		want bool
	}{
		{
			name: "completed beats newer incomplete",
			a:    DateCursor{Date: d, Completed: true, ObservedAt: t0},
			b:    DateCursor{Date: d, Completed: false, ObservedAt: t1},
			want: true,
		},
		{
			name: "incomplete never beats completed",
			a:    DateCursor{Date: d, Completed: false, ObservedAt: t1},
			b:    DateCursor{Date: d, Completed: true, ObservedAt: t0},
			want: false,
		},
		{
			name: "newer wins among incomplete",
			a:    DateCursor{Date: d, Offset: 50, ObservedAt: t1},
			b:    DateCursor{Date: d, Offset: 25, ObservedAt: t0},
			want: true,
		},
		{
			name: "equal timestamps do not supersede",
			a:    DateCursor{Date: d, Offset: 50, ObservedAt: t0},
			b:    DateCursor{Date: d, Offset: 25, ObservedAt: t0},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Supersedes(tt.b))
		})
	}
}
