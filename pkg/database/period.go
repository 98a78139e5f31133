package database

import (
	"fmt"
	"time"
)

// ParseMonth("MMYYYY") -> 1er jour du mois UTC
func ParseMonth(mmyyyy string) (time.Time, error) {
	if len(mmyyyy) != 6 {
		return time.Time{}, fmt.Errorf("format attendu MMYYYY (ex: 012025)")
	}
	for _, c := range mmyyyy {
		if c < '0' || c > '9' {
			return time.Time{}, fmt.Errorf("format attendu MMYYYY (ex: 012025)")
		}
	}
	month := int(mmyyyy[0]-'0')*10 + int(mmyyyy[1]-'0')
	year := int(mmyyyy[2]-'0')*1000 + int(mmyyyy[3]-'0')*100 + int(mmyyyy[4]-'0')*10 + int(mmyyyy[5]-'0')
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("mois invalide")
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

// Period convertit deux mois inclusifs en bornes [from, to).
func Period(startMonth, endMonth string) (time.Time, time.Time, error) {
	from, err := ParseMonth(startMonth)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_month: %w", err)
	}
	end, err := ParseMonth(endMonth)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_month: %w", err)
	}
	if end.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_month < start_month")
	}
	return from, end.AddDate(0, 1, 0), nil
}
