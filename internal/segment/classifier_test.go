package segment

import (
	"testing"
	"time"

	"github.com/twistylocks/outreach/internal/domain"
)

func testThresholds() Thresholds {
	return Thresholds{
		VIPMinVisits:      10,
		VIPMinSpend:       500,
		RegularMinVisits:  3,
		RecencyWindowDays: 90,
		LapsedAfterDays:   90,
	}
}

func daysAgo(now time.Time, d int) *time.Time {
	t := now.AddDate(0, 0, -d)
	return &t
}

func TestClassify(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	cl := NewClassifier(testThresholds())

	tests := []struct {
		name string
		cust domain.Customer
		want domain.Segment
	}{
		{
			name: "zero visits is new",
			cust: domain.Customer{TotalVisits: 0},
			want: domain.SegmentNew,
		},
		{
			name: "zero visits with spend still new",
			cust: domain.Customer{TotalVisits: 0, TotalSpent: 100},
			want: domain.SegmentNew,
		},
		{
			name: "no visit within window is lapsed",
			cust: domain.Customer{TotalVisits: 8, TotalSpent: 400, LastVisitDate: daysAgo(now, 120)},
			want: domain.SegmentLapsed,
		},
		{
			name: "high visits and spend recently is vip",
			cust: domain.Customer{TotalVisits: 12, TotalSpent: 900, LastVisitDate: daysAgo(now, 10)},
			want: domain.SegmentVIP,
		},
		{
			name: "high visits low spend is regular",
			cust: domain.Customer{TotalVisits: 12, TotalSpent: 200, LastVisitDate: daysAgo(now, 10)},
			want: domain.SegmentRegular,
		},
		{
			name: "few recent visits is regular",
			cust: domain.Customer{TotalVisits: 2, TotalSpent: 80, LastVisitDate: daysAgo(now, 20)},
			want: domain.SegmentRegular,
		},
		{
			name: "visits but unknown date is lapsed not vip",
			cust: domain.Customer{TotalVisits: 20, TotalSpent: 2000, LastVisitDate: nil},
			want: domain.SegmentLapsed,
		},
		{
			name: "boundary exactly at lapsed threshold stays regular",
			cust: domain.Customer{TotalVisits: 4, TotalSpent: 100, LastVisitDate: daysAgo(now, 90)},
			want: domain.SegmentRegular,
		},
		{
			name: "future visit date clamps to zero days",
			cust: domain.Customer{TotalVisits: 12, TotalSpent: 900, LastVisitDate: daysAgo(now, -1)},
			want: domain.SegmentVIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cl.Classify(tt.cust, now); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	cl := NewClassifier(testThresholds())

	cust := domain.Customer{TotalVisits: 12, TotalSpent: 900, LastVisitDate: daysAgo(now, 10)}
	first := cl.Classify(cust, now)
	for i := 0; i < 100; i++ {
		if got := cl.Classify(cust, now); got != first {
			t.Fatalf("classification not deterministic: %s then %s", first, got)
		}
	}
}

// Every combination of attribute extremes must land in exactly one of the
// four segments; classification is total.
func TestClassifyTotal(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	cl := NewClassifier(testThresholds())

	visits := []int{0, 1, 3, 10, 50}
	spends := []float64{0, 100, 500, 5000}
	dates := []*time.Time{nil, daysAgo(now, 0), daysAgo(now, 89), daysAgo(now, 90), daysAgo(now, 91), daysAgo(now, 400)}

	known := map[domain.Segment]bool{
		domain.SegmentNew: true, domain.SegmentRegular: true,
		domain.SegmentVIP: true, domain.SegmentLapsed: true,
	}

	for _, v := range visits {
		for _, s := range spends {
			for _, d := range dates {
				got := cl.Classify(domain.Customer{TotalVisits: v, TotalSpent: s, LastVisitDate: d}, now)
				if !known[got] {
					t.Fatalf("visits=%d spend=%.0f date=%v: unknown segment %q", v, s, d, got)
				}
			}
		}
	}
}
