package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTemplateWeekday(t *testing.T) {
	times := TemplateTimes(time.Monday)

	// 08:00-10:30 and 13:00-16:00 inclusive at 30-minute steps.
	assert.Len(t, times, 13)
	assert.Equal(t, "08:00", times[0])
	assert.Equal(t, "10:30", times[5])
	assert.Equal(t, "13:00", times[6])
	assert.Equal(t, "16:00", times[12])
	assert.NotContains(t, times, "11:00")
	assert.NotContains(t, times, "12:30")
	assert.NotContains(t, times, "16:30")
}

func TestTemplateSaturdayMorningOnly(t *testing.T) {
	times := TemplateTimes(time.Saturday)

	assert.Len(t, times, 6)
	assert.Equal(t, "08:00", times[0])
	assert.Equal(t, "10:30", times[5])
	assert.NotContains(t, times, "13:00")
}

func TestTemplateSundayClosed(t *testing.T) {
	assert.Empty(t, TemplateTimes(time.Sunday))
}

func TestTemplateTimesAscending(t *testing.T) {
	for day := time.Sunday; day <= time.Saturday; day++ {
		times := TemplateTimes(day)
		for i := 1; i < len(times); i++ {
			assert.Less(t, times[i-1], times[i], "day %s", day)
		}
	}
}
