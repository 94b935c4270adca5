package schedule

import "time"

// Working hours are fixed business values: 30-minute slots, full weekdays
// with a midday break, Saturday mornings only, closed Sunday.
const slotStep = 30 * time.Minute

type window struct {
	open  string // first start time
	close string // last start time, inclusive
}

var weekdayWindows = map[time.Weekday][]window{
	time.Monday:    {{"08:00", "10:30"}, {"13:00", "16:00"}},
	time.Tuesday:   {{"08:00", "10:30"}, {"13:00", "16:00"}},
	time.Wednesday: {{"08:00", "10:30"}, {"13:00", "16:00"}},
	time.Thursday:  {{"08:00", "10:30"}, {"13:00", "16:00"}},
	time.Friday:    {{"08:00", "10:30"}, {"13:00", "16:00"}},
	time.Saturday:  {{"08:00", "10:30"}},
	// Sunday: closed, no entry
}

// TemplateTimes returns the canonical slot start times for a day of week,
// ascending. An empty result means the clinic is closed that day.
func TemplateTimes(day time.Weekday) []string {
	windows := weekdayWindows[day]
	if len(windows) == 0 {
		return nil
	}

	var times []string
	for _, w := range windows {
		start, _ := time.Parse("15:04", w.open)
		end, _ := time.Parse("15:04", w.close)
		for t := start; !t.After(end); t = t.Add(slotStep) {
			times = append(times, t.Format("15:04"))
		}
	}
	return times
}
