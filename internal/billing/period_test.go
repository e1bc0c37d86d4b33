package billing

import (
	"testing"
	"time"

	"github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/enums"
	pkgerrors "github.com/MVP-Lab-SA/dakkah-cityos-medusa-sub009/pkg/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func TestCalculatePeriodEnd(t *testing.T) {
	cases := []struct {
		name     string
		start    time.Time
		interval enums.BillingInterval
		count    int
		want     time.Time
	}{
		{"one day", date(2025, time.March, 15), enums.BillingIntervalDay, 1, date(2025, time.March, 16)},
		{"ten days", date(2025, time.March, 25), enums.BillingIntervalDay, 10, date(2025, time.April, 4)},
		{"one week", date(2025, time.March, 15), enums.BillingIntervalWeek, 1, date(2025, time.March, 22)},
		{"two weeks", date(2025, time.December, 25), enums.BillingIntervalWeek, 2, date(2026, time.January, 8)},
		{"plain month", date(2025, time.March, 15), enums.BillingIntervalMonth, 1, date(2025, time.April, 15)},
		{"jan 31 clamps to feb 28", date(2025, time.January, 31), enums.BillingIntervalMonth, 1, date(2025, time.February, 28)},
		{"jan 31 clamps to feb 29 in leap year", date(2024, time.January, 31), enums.BillingIntervalMonth, 1, date(2024, time.February, 29)},
		{"may 31 clamps to jun 30", date(2025, time.May, 31), enums.BillingIntervalMonth, 1, date(2025, time.June, 30)},
		{"month rollover across year end", date(2025, time.December, 15), enums.BillingIntervalMonth, 1, date(2026, time.January, 15)},
		{"two months from dec 31", date(2025, time.December, 31), enums.BillingIntervalMonth, 2, date(2026, time.February, 28)},
		{"quarter", date(2025, time.January, 31), enums.BillingIntervalQuarter, 1, date(2025, time.April, 30)},
		{"year", date(2025, time.March, 15), enums.BillingIntervalYear, 1, date(2026, time.March, 15)},
		{"year from leap day", date(2024, time.February, 29), enums.BillingIntervalYear, 1, date(2025, time.February, 28)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CalculatePeriodEnd(tc.start, tc.interval, tc.count)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
			if !got.After(tc.start) {
				t.Fatalf("period end %s is not after start %s", got, tc.start)
			}
		})
	}
}

func TestCalculatePeriodEndPreservesClock(t *testing.T) {
	start := time.Date(2025, time.January, 31, 23, 45, 12, 500, time.UTC)
	got, err := CalculatePeriodEnd(start, enums.BillingIntervalMonth, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, m, s := got.Clock()
	if h != 23 || m != 45 || s != 12 || got.Nanosecond() != 500 {
		t.Fatalf("clock not preserved, got %s", got)
	}
}

func TestCalculatePeriodEndRejectsUnknownInterval(t *testing.T) {
	_, err := CalculatePeriodEnd(date(2025, time.March, 15), enums.BillingInterval("fortnight"), 1)
	if err == nil {
		t.Fatal("expected error for unknown interval")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidInterval {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeInvalidInterval, err)
	}
}

func TestCalculatePeriodEndRejectsNonPositiveCount(t *testing.T) {
	for _, count := range []int{0, -1} {
		_, err := CalculatePeriodEnd(date(2025, time.March, 15), enums.BillingIntervalMonth, count)
		if err == nil {
			t.Fatalf("expected error for count %d", count)
		}
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidInterval {
			t.Fatalf("expected %s, got %v", pkgerrors.CodeInvalidInterval, err)
		}
	}
}
