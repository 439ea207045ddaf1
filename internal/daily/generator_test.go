package daily

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestHashKnownValues(t *testing.T) {
	cases := map[string]uint32{
		"":            0,
		"abc":         2045100815,
		"2025-03-140": 1032934118,
	}
	for in, want := range cases {
		if got := hash(in); got != want {
			t.Fatalf("hash(%q)=%d, want %d", in, got, want)
		}
	}
}

func TestGenerateGolden(t *testing.T) {
	cases := []struct {
		date string
		size int
		want []int
	}{
		{"2025-03-14", 78, []int{8, 23, 73, 39, 47, 35, 24, 1, 17, 2, 21, 76, 65, 68, 64, 66, 7, 4, 36, 9, 18, 11, 12, 22}},
		{"2024-02-29", 78, []int{27, 77, 1, 7, 39, 69, 75, 71, 35, 25, 13, 33, 40, 43, 16, 55, 46, 76, 67, 32, 17, 59, 26, 21}},
		{"2025-03-14", 24, []int{14, 23, 19, 21, 18, 6, 11, 1, 4, 9, 15, 22, 16, 2, 13, 8, 3, 0, 5, 17, 10, 12, 20, 7}},
	}
	for _, tc := range cases {
		got, err := Generate(tc.date, tc.size)
		if err != nil {
			t.Fatalf("Generate(%s, %d) error: %v", tc.date, tc.size, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Generate(%s, %d)=%v, want %v", tc.date, tc.size, got, tc.want)
		}
	}
}

func TestGenerateIsDistinctAndInRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, size := range []int{24, 25, 30, 56, 78, 200} {
		for d := 0; d < 400; d++ {
			date := start.AddDate(0, 0, d).Format(time.DateOnly)
			got, err := Generate(date, size)
			if err != nil {
				t.Fatalf("Generate(%s, %d) error: %v", date, size, err)
			}
			if len(got) != Slots {
				t.Fatalf("len=%d, want %d", len(got), Slots)
			}
			seen := make(map[int]bool, Slots)
			for _, idx := range got {
				if idx < 0 || idx >= size {
					t.Fatalf("Generate(%s, %d) index %d out of range", date, size, idx)
				}
				if seen[idx] {
					t.Fatalf("Generate(%s, %d) duplicate index %d: %v", date, size, idx, got)
				}
				seen[idx] = true
			}

			again, _ := Generate(date, size)
			if !reflect.DeepEqual(got, again) {
				t.Fatalf("Generate(%s, %d) not deterministic", date, size)
			}
		}
	}
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		date string
		size int
		want error
	}{
		{"2025-03-14", 0, ErrDeckTooSmall},
		{"2025-03-14", 23, ErrDeckTooSmall},
		{"2025-3-14", 78, ErrInvalidDate},
		{"2025-02-30", 78, ErrInvalidDate},
		{"", 78, ErrInvalidDate},
	}
	for _, tc := range cases {
		_, err := Generate(tc.date, tc.size)
		var ge *GenerationError
		if !errors.As(err, &ge) || !errors.Is(err, tc.want) {
			t.Fatalf("Generate(%q, %d) err=%v, want %v", tc.date, tc.size, err, tc.want)
		}
	}
}

func TestGenerateForUsesCalendarDay(t *testing.T) {
	at := time.Date(2025, 3, 14, 23, 59, 0, 0, time.Local)
	got, err := GenerateFor(at, 78)
	if err != nil {
		t.Fatalf("GenerateFor error: %v", err)
	}
	want, _ := Generate("2025-03-14", 78)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GenerateFor=%v, want %v", got, want)
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	c, err := NewCache(2)
	if err != nil {
		t.Fatalf("NewCache error: %v", err)
	}
	first, err := c.Generate("2025-03-14", 78)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	first[0] = -1

	second, _ := c.Generate("2025-03-14", 78)
	if second[0] != 8 {
		t.Fatalf("cached result mutated: %v", second)
	}
	if c.Len() != 1 {
		t.Fatalf("Len=%d, want 1", c.Len())
	}

	c.Generate("2025-03-15", 78)
	c.Generate("2025-03-16", 78)
	if c.Len() != 2 {
		t.Fatalf("Len=%d, want 2 after eviction", c.Len())
	}

	if _, err := c.Generate("2025-03-14", 10); !errors.Is(err, ErrDeckTooSmall) {
		t.Fatalf("err=%v, want ErrDeckTooSmall", err)
	}
}
