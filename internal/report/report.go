// Package report contains the pure time-bucketing and goal-progress math for
// dashboard reporting. All windows are half-open [from, to) and computed in
// the reference time's location, so callers control the owner's calendar by
// localizing the reference date.
package report

import (
	"math"
	"sort"
	"strconv"
	"time"

	"vendaflow/backend/internal/domain"
)

// Window returns the calendar window of period that contains ref.
func Window(period domain.Period, ref time.Time) (time.Time, time.Time) {
	loc := ref.Location()
	switch period {
	case domain.PeriodDaily:
		from := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 0, 1)
	case domain.PeriodWeekly:
		day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
		from := day.AddDate(0, 0, -int(day.Weekday()))
		return from, from.AddDate(0, 0, 7)
	case domain.PeriodMonthly:
		from := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 1, 0)
	case domain.PeriodAnnual:
		from := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(1, 0, 0)
	default:
		from := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 0, 1)
	}
}

// DaysInMonth reports the number of calendar days in ref's month.
func DaysInMonth(ref time.Time) int {
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	return first.AddDate(0, 1, -1).Day()
}

// BucketSales groups sale totals into the fixed, gap-filled bucket series for
// period around ref. The full index set is generated first and aggregated
// sums are overlaid, so empty sub-windows still appear with a zero amount.
// Sales outside the enclosing window are ignored.
func BucketSales(sales []domain.Sale, period domain.Period, ref time.Time) []domain.Bucket {
	from, to := Window(period, ref)
	buckets := emptyBuckets(period, ref)

	for _, sale := range sales {
		at := sale.OccurredAt.In(ref.Location())
		if at.Before(from) || !at.Before(to) {
			continue
		}
		idx := bucketIndex(period, from, at)
		if idx < 0 || idx >= len(buckets) {
			continue
		}
		buckets[idx].AmountCents += sale.TotalCents
	}

	return buckets
}

func emptyBuckets(period domain.Period, ref time.Time) []domain.Bucket {
	switch period {
	case domain.PeriodDaily:
		buckets := make([]domain.Bucket, 24)
		for hour := range buckets {
			buckets[hour] = domain.Bucket{Label: twoDigit(hour) + ":00"}
		}
		return buckets
	case domain.PeriodWeekly:
		buckets := make([]domain.Bucket, 7)
		for day := range buckets {
			buckets[day] = domain.Bucket{Label: time.Weekday(day).String()[:3]}
		}
		return buckets
	case domain.PeriodMonthly:
		days := DaysInMonth(ref)
		buckets := make([]domain.Bucket, days)
		for day := range buckets {
			buckets[day] = domain.Bucket{Label: strconv.Itoa(day + 1)}
		}
		return buckets
	case domain.PeriodAnnual:
		buckets := make([]domain.Bucket, 12)
		for month := range buckets {
			buckets[month] = domain.Bucket{Label: time.Month(month + 1).String()}
		}
		return buckets
	default:
		return nil
	}
}

func bucketIndex(period domain.Period, from time.Time, at time.Time) int {
	switch period {
	case domain.PeriodDaily:
		return at.Hour()
	case domain.PeriodWeekly:
		return int(at.Weekday())
	case domain.PeriodMonthly:
		return at.Day() - 1
	case domain.PeriodAnnual:
		return int(at.Month()) - 1
	default:
		return -1
	}
}

// SumInWindow totals the sales whose OccurredAt falls inside the period
// window containing ref.
func SumInWindow(sales []domain.Sale, period domain.Period, ref time.Time) int64 {
	from, to := Window(period, ref)
	var sum int64
	for _, sale := range sales {
		at := sale.OccurredAt.In(ref.Location())
		if at.Before(from) || !at.Before(to) {
			continue
		}
		sum += sale.TotalCents
	}
	return sum
}

// Progress computes actual-vs-target for the period window containing ref.
// Percentage is rounded to the nearest integer; a zero target yields 0.
func Progress(sales []domain.Sale, period domain.Period, ref time.Time, targetCents int64) domain.GoalProgress {
	actual := SumInWindow(sales, period, ref)
	percentage := 0
	if targetCents > 0 {
		percentage = int(math.Round(float64(actual) / float64(targetCents) * 100))
	}
	return domain.GoalProgress{
		Period:      period,
		ActualCents: actual,
		TargetCents: targetCents,
		Percentage:  percentage,
	}
}

// TopProducts rolls the sale history up per product, ordered by quantity sold
// descending. Product names are left empty for the caller to fill in.
func TopProducts(sales []domain.Sale, limit int) []domain.TopProduct {
	if limit < 1 {
		limit = 5
	}

	type rollup struct {
		quantity int
		revenue  int64
	}
	byProduct := make(map[string]rollup)
	for _, sale := range sales {
		for _, item := range sale.Items {
			agg := byProduct[item.ProductID]
			agg.quantity += item.Quantity
			agg.revenue += int64(item.Quantity) * item.UnitPriceCents
			byProduct[item.ProductID] = agg
		}
	}

	top := make([]domain.TopProduct, 0, len(byProduct))
	for productID, agg := range byProduct {
		top = append(top, domain.TopProduct{
			ProductID:    productID,
			Quantity:     agg.quantity,
			RevenueCents: agg.revenue,
		})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Quantity == top[j].Quantity {
			return top[i].ProductID < top[j].ProductID
		}
		return top[i].Quantity > top[j].Quantity
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top
}

func twoDigit(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
