package domain

import (
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

func IsWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}

// LocalStart is the showtime start on the cinema's wall clock. An empty or
// unknown zone falls back to UTC.
func (q SeatQuote) LocalStart() time.Time {
	loc, err := time.LoadLocation(q.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	return q.StartTime.In(loc)
}

// TicketPrice is (movie + experience) scaled by the seat's column span, plus
// the seat type surcharge for the showtime's day in the cinema's zone.
func TicketPrice(q SeatQuote) decimal.Decimal {
	span := q.ColumnSpan
	if span < 1 {
		span = 1
	}
	price := q.MoviePrice.Add(q.ExperiencePrice).Mul(decimal.NewFromInt(int64(span)))
	if IsWeekend(q.LocalStart()) {
		return price.Add(q.WeekendPrice)
	}
	return price.Add(q.SeatPrice)
}
