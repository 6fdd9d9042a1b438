package domain

import (
	"fmt"
	"strings"
	"time"
)

// Period задаёт гранулярность временной агрегации.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod приводит параметр запроса к известной гранулярности.
// Неизвестные значения не считаются ошибкой и трактуются как daily.
func ParsePeriod(raw string) Period {
	switch Period(strings.ToLower(strings.TrimSpace(raw))) {
	case PeriodWeekly:
		return PeriodWeekly
	case PeriodMonthly:
		return PeriodMonthly
	default:
		return PeriodDaily
	}
}

// BucketKey усекает момент времени до ключа интервала:
// daily — YYYY-MM-DD, weekly — YYYY-Www (ISO-неделя), monthly — YYYY-MM.
func (p Period) BucketKey(t time.Time) string {
	t = t.UTC()
	switch p {
	case PeriodWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PeriodMonthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// PGFormat возвращает шаблон to_char, дающий тот же ключ на стороне Postgres.
func (p Period) PGFormat() string {
	switch p {
	case PeriodWeekly:
		return `IYYY-"W"IW`
	case PeriodMonthly:
		return "YYYY-MM"
	default:
		return "YYYY-MM-DD"
	}
}
