package temporal

import "strconv"

var frWeekdays = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}

var frMonthsShort = [...]string{"", "janv.", "févr.", "mars", "avr.", "mai", "juin", "juil.", "août", "sept.", "oct.", "nov.", "déc."}

// DayLabel renders d the way the booking widget shows day headers, e.g. "lundi 2 mars".
func DayLabel(d Date) string {
	return frWeekdays[d.Weekday()] + " " + strconv.Itoa(d.Day) + " " + frMonthsShort[d.Month]
}
